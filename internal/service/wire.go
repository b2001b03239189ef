// Package service exposes the sync engine, settlement queries and account
// operations over HTTP.
package service

import (
	"github.com/tallyapp/tally/internal/models"
	"github.com/tallyapp/tally/internal/syncer"
)

// syncRequest is the inbound delta wire shape. Entity references inside the
// delta use whatever ID the client knows for the entity: its own local ID,
// or the remote ID from an earlier mapping response.
type syncRequest struct {
	BillID           string         `json:"billId"`
	ClientLocalID    string         `json:"clientLocalId"`
	BaseVersion      int64          `json:"baseVersion"`
	Name             string         `json:"name"`
	Members          memberSection  `json:"members"`
	Expenses         expenseSection `json:"expenses"`
	SettledTransfers *[]settledWire `json:"settledTransfers"`
	ClientTimestamp  int64          `json:"clientTimestamp"`
}

type memberSection struct {
	Upsert     []memberUpsertWire `json:"upsert"`
	DeletedIDs []string           `json:"deletedIds"`
}

type memberUpsertWire struct {
	LocalID      string `json:"localId"`
	RemoteID     string `json:"remoteId,omitempty"`
	Name         string `json:"name"`
	DisplayOrder int    `json:"displayOrder"`
	LinkedUserID string `json:"linkedUserId,omitempty"`
	ClaimedAt    int64  `json:"claimedAt,omitempty"`
}

type expenseSection struct {
	Upsert     []expenseUpsertWire `json:"upsert"`
	DeletedIDs []string            `json:"deletedIds"`
}

type expenseUpsertWire struct {
	LocalID             string       `json:"localId"`
	RemoteID            string       `json:"remoteId,omitempty"`
	Name                string       `json:"name"`
	Amount              float64      `json:"amount"`
	ServiceFeePercent   float64      `json:"serviceFeePercent"`
	IsItemized          bool         `json:"isItemized"`
	PaidByLocalID       string       `json:"paidByLocalId,omitempty"`
	ParticipantLocalIDs []string     `json:"participantLocalIds"`
	Items               *itemSection `json:"items,omitempty"`
}

type itemSection struct {
	Upsert     []itemUpsertWire `json:"upsert"`
	DeletedIDs []string         `json:"deletedIds"`
}

type itemUpsertWire struct {
	LocalID             string   `json:"localId"`
	RemoteID            string   `json:"remoteId,omitempty"`
	Name                string   `json:"name"`
	Amount              float64  `json:"amount"`
	PaidByLocalID       string   `json:"paidByLocalId,omitempty"`
	ParticipantLocalIDs []string `json:"participantLocalIds"`
}

type settledWire struct {
	FromMemberID string  `json:"fromMemberId"`
	ToMemberID   string  `json:"toMemberId"`
	Amount       float64 `json:"amount"`
}

func (r *syncRequest) toDelta(actorID string) *syncer.Delta {
	d := &syncer.Delta{
		BillID:          r.BillID,
		BillLocalID:     r.ClientLocalID,
		BaseVersion:     r.BaseVersion,
		Name:            r.Name,
		ActorID:         actorID,
		ClientTimestamp: r.ClientTimestamp,
	}

	for _, u := range r.Members.Upsert {
		d.Members.Upserts = append(d.Members.Upserts, syncer.MemberUpsert{
			LocalID:      u.LocalID,
			RemoteID:     u.RemoteID,
			Name:         u.Name,
			DisplayOrder: u.DisplayOrder,
			LinkedUserID: u.LinkedUserID,
			ClaimedAt:    u.ClaimedAt,
		})
	}
	d.Members.DeletedIDs = r.Members.DeletedIDs

	for _, u := range r.Expenses.Upsert {
		eu := syncer.ExpenseUpsert{
			LocalID:           u.LocalID,
			RemoteID:          u.RemoteID,
			Name:              u.Name,
			Amount:            u.Amount,
			ServiceFeePercent: u.ServiceFeePercent,
			IsItemized:        u.IsItemized,
			PaidBy:            u.PaidByLocalID,
			ParticipantIDs:    u.ParticipantLocalIDs,
		}
		if u.Items != nil {
			for _, iu := range u.Items.Upsert {
				eu.Items.Upserts = append(eu.Items.Upserts, syncer.ItemUpsert{
					LocalID:        iu.LocalID,
					RemoteID:       iu.RemoteID,
					Name:           iu.Name,
					Amount:         iu.Amount,
					PaidBy:         iu.PaidByLocalID,
					ParticipantIDs: iu.ParticipantLocalIDs,
				})
			}
			eu.Items.DeletedIDs = u.Items.DeletedIDs
		}
		d.Expenses.Upserts = append(d.Expenses.Upserts, eu)
	}
	d.Expenses.DeletedIDs = r.Expenses.DeletedIDs

	if r.SettledTransfers != nil {
		d.ReplaceSettledTransfers = true
		for _, s := range *r.SettledTransfers {
			d.SettledTransfers = append(d.SettledTransfers, syncer.SettledEntry{
				From:   s.FromMemberID,
				To:     s.ToMemberID,
				Amount: s.Amount,
			})
		}
	}
	return d
}

type idMappingsWire struct {
	Members      map[string]string `json:"members"`
	Expenses     map[string]string `json:"expenses"`
	ExpenseItems map[string]string `json:"expenseItems"`
}

type syncResponse struct {
	RemoteBillID    string         `json:"remoteBillId"`
	ShareCode       string         `json:"shareCode,omitempty"`
	NewVersion      int64          `json:"newVersion"`
	IDMappings      idMappingsWire `json:"idMappings"`
	ServerTimestamp int64          `json:"serverTimestamp"`
}

type conflictResponse struct {
	Rejected       bool   `json:"rejected"`
	CurrentVersion int64  `json:"currentVersion"`
	Reason         string `json:"reason"`
}

func toSyncResponse(result *syncer.Result) syncResponse {
	return syncResponse{
		RemoteBillID: result.BillID,
		ShareCode:    result.ShareCode,
		NewVersion:   result.NewVersion,
		IDMappings: idMappingsWire{
			Members:      emptyIfNil(result.Mappings.Members),
			Expenses:     emptyIfNil(result.Mappings.Expenses),
			ExpenseItems: emptyIfNil(result.Mappings.ExpenseItems),
		},
		ServerTimestamp: result.ServerTimestamp,
	}
}

func emptyIfNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// billResponse is the read projection of a bill: tombstones excluded,
// members in display order.
type billResponse struct {
	BillID           string            `json:"billId"`
	Name             string            `json:"name"`
	ShareCode        string            `json:"shareCode,omitempty"`
	Version          int64             `json:"version"`
	Members          []memberResponse  `json:"members"`
	Expenses         []expenseResponse `json:"expenses"`
	SettledTransfers []settledWire     `json:"settledTransfers"`
	CreatedAt        int64             `json:"createdAt"`
	UpdatedAt        int64             `json:"updatedAt"`
}

type memberResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DisplayOrder int    `json:"displayOrder"`
	LinkedUserID string `json:"linkedUserId,omitempty"`
	ClaimedAt    int64  `json:"claimedAt,omitempty"`
}

type expenseResponse struct {
	ID                string         `json:"id"`
	Name              string         `json:"name"`
	Amount            float64        `json:"amount"`
	ServiceFeePercent float64        `json:"serviceFeePercent"`
	IsItemized        bool           `json:"isItemized"`
	PaidByID          string         `json:"paidById,omitempty"`
	ParticipantIDs    []string       `json:"participantIds"`
	Items             []itemResponse `json:"items,omitempty"`
}

type itemResponse struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Amount         float64  `json:"amount"`
	PaidByID       string   `json:"paidById,omitempty"`
	ParticipantIDs []string `json:"participantIds"`
}

func toBillResponse(bill *models.Bill) billResponse {
	resp := billResponse{
		BillID:           bill.ID,
		Name:             bill.Name,
		ShareCode:        bill.ShareCode,
		Version:          bill.Version,
		Members:          []memberResponse{},
		Expenses:         []expenseResponse{},
		SettledTransfers: []settledWire{},
		CreatedAt:        bill.CreatedAt,
		UpdatedAt:        bill.UpdatedAt,
	}
	for _, m := range bill.ActiveMembers() {
		resp.Members = append(resp.Members, memberResponse{
			ID:           m.ID,
			Name:         m.Name,
			DisplayOrder: m.DisplayOrder,
			LinkedUserID: m.LinkedUserID,
			ClaimedAt:    m.ClaimedAt,
		})
	}
	for _, e := range bill.ActiveExpenses() {
		er := expenseResponse{
			ID:                e.ID,
			Name:              e.Name,
			Amount:            e.Amount,
			ServiceFeePercent: e.ServiceFeePercent,
			IsItemized:        e.IsItemized,
			PaidByID:          e.PaidByID,
			ParticipantIDs:    e.ParticipantIDs,
		}
		if er.ParticipantIDs == nil {
			er.ParticipantIDs = []string{}
		}
		for _, it := range e.ActiveItems() {
			ir := itemResponse{
				ID:             it.ID,
				Name:           it.Name,
				Amount:         it.Amount,
				PaidByID:       it.PaidByID,
				ParticipantIDs: it.ParticipantIDs,
			}
			if ir.ParticipantIDs == nil {
				ir.ParticipantIDs = []string{}
			}
			er.Items = append(er.Items, ir)
		}
		resp.Expenses = append(resp.Expenses, er)
	}
	for _, st := range bill.SettledTransfers {
		resp.SettledTransfers = append(resp.SettledTransfers, settledWire{
			FromMemberID: st.FromMemberID,
			ToMemberID:   st.ToMemberID,
			Amount:       st.Amount,
		})
	}
	return resp
}
