package storage

import (
	"context"
	"encoding/json"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"portal-api/domain"
)

type userEntity struct {
	aztables.Entity
	Name             string `json:"Name"`
	Email            string `json:"Email"`
	Mobile           string `json:"Mobile"`
	Role             string `json:"Role"`
	StripeCustomerID string `json:"StripeCustomerID"`
}

// Lookup resolves a directory entry by user id. A missing user is (nil, nil).
func (s *Storage) Lookup(ctx context.Context, userID string) (*domain.DirectoryEntry, error) {
	resp, err := s.userTable.GetEntity(ctx, userID, userID, nil)
	if err != nil {
		if isStatus(err, 404) {
			return nil, nil
		}
		return nil, err
	}
	var ent userEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, err
	}
	return &domain.DirectoryEntry{
		ID:               ent.RowKey,
		Name:             ent.Name,
		Email:            ent.Email,
		Mobile:           ent.Mobile,
		Role:             ent.Role,
		StripeCustomerID: ent.StripeCustomerID,
	}, nil
}

// SetStripeCustomerID persists a provisioned customer record id onto the
// user's profile.
func (s *Storage) SetStripeCustomerID(ctx context.Context, userID, customerID string) error {
	fields := map[string]any{
		"PartitionKey":     userID,
		"RowKey":           userID,
		"StripeCustomerID": customerID,
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.userTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	return err
}

type settingEntity struct {
	aztables.Entity
	Value string `json:"Value"`
}

// LoadSettings reads the administrative settings rows into a key/value map.
// Callers pick the keys they recognise via the typed credential structs.
func (s *Storage) LoadSettings(ctx context.Context) (map[string]string, error) {
	filter := "PartitionKey eq '" + settingsPartition + "'"
	pager := s.settingsTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	settings := map[string]string{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent settingEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			settings[ent.RowKey] = ent.Value
		}
	}
	return settings, nil
}
