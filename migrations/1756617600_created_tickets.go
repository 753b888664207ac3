package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		users, err := app.FindCollectionByNameOrId("users")
		if err != nil {
			return err
		}

		collection := core.NewBaseCollection("tickets")
		collection.Fields.Add(
			&core.RelationField{
				Name:         "owner",
				Required:     true,
				CollectionId: users.Id,
				MaxSelect:    1,
			},
			&core.TextField{Name: "ref_code", Max: 16},
			&core.SelectField{
				Name:      "category",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"exchange", "giveaway"},
			},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"active", "completed", "cancelled", "expired"},
			},
			&core.TextField{Name: "home_team", Required: true},
			&core.TextField{Name: "away_team", Required: true},
			&core.TextField{Name: "competition"},
			&core.TextField{Name: "stadium"},
			&core.DateField{Name: "match_date"},
			&core.TextField{Name: "current_section"},
			&core.TextField{Name: "current_row"},
			&core.NumberField{Name: "current_number", OnlyInt: true},
			&core.TextField{Name: "desired_section"},
			&core.TextField{Name: "desired_row"},
			&core.NumberField{Name: "desired_number", OnlyInt: true},
			&core.NumberField{Name: "face_value"},
			&core.TextField{Name: "notes", Max: 500},
			&core.DateField{Name: "expires_at"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		// compound indexes backing the public listing and the per-owner
		// listing, so neither query needs a client-side sort fallback
		collection.AddIndex("idx_tickets_status_created", false, "status, created", "")
		collection.AddIndex("idx_tickets_owner_created", false, "owner, created", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("tickets")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
