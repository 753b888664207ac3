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
		tickets, err := app.FindCollectionByNameOrId("tickets")
		if err != nil {
			return err
		}

		collection := core.NewBaseCollection("exchange_requests")
		collection.Fields.Add(
			&core.RelationField{
				Name:         "from_ticket",
				Required:     true,
				CollectionId: tickets.Id,
				MaxSelect:    1,
			},
			&core.RelationField{
				Name:         "to_ticket",
				Required:     true,
				CollectionId: tickets.Id,
				MaxSelect:    1,
			},
			&core.RelationField{
				Name:         "from_user",
				Required:     true,
				CollectionId: users.Id,
				MaxSelect:    1,
			},
			&core.RelationField{
				Name:         "to_user",
				Required:     true,
				CollectionId: users.Id,
				MaxSelect:    1,
			},
			&core.RelationField{
				Name:         "selected_from_ticket",
				CollectionId: tickets.Id,
				MaxSelect:    1,
			},
			&core.SelectField{
				Name:      "status",
				Required:  true,
				MaxSelect: 1,
				Values:    []string{"pending", "accepted", "rejected", "cancelled", "completed"},
			},
			&core.TextField{Name: "message", Max: 500},
			&core.BoolField{Name: "from_confirmed"},
			&core.BoolField{Name: "to_confirmed"},
			&core.AutodateField{Name: "created", OnCreate: true},
			&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true},
		)

		collection.AddIndex("idx_exreq_to_user_created", false, "to_user, created", "")
		collection.AddIndex("idx_exreq_from_user_created", false, "from_user, created", "")
		// at most one pending request per ticket pair; closes the
		// concurrent duplicate-create race at the store level
		collection.AddIndex("idx_exreq_pending_pair", true, "from_ticket, to_ticket", "status = 'pending'")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("exchange_requests")
		if err != nil {
			return err
		}
		return app.Delete(collection)
	})
}
