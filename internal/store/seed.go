package store

import (
	"log"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"fireway-backend/internal/models"
)

// Seed loads demo accounts and a batch of pending orders. Safe to run
// repeatedly; it skips anything already present.
func Seed(ledger Ledger) error {
	users := []struct {
		email string
		name  string
		phone string
		role  string
	}{
		{"driver1@fireway.com", "John Driver", "+44 7700 900001", models.RoleDriver},
		{"driver2@fireway.com", "Sarah Delivery", "+44 7700 900002", models.RoleDriver},
		{"store@fireway.com", "Store Manager", "+44 7700 900003", models.RoleStoreStaff},
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	created := 0
	for _, u := range users {
		if _, err := ledger.GetUserByEmail(u.email); err == nil {
			continue
		}
		user := &models.User{
			ID:       uuid.New().String(),
			Email:    u.email,
			Password: string(hash),
			Name:     u.name,
			Phone:    u.phone,
			Role:     u.role,
			IsActive: true,
		}
		if err := ledger.CreateUser(user); err != nil {
			return err
		}
		created++
	}
	if created > 0 {
		log.Printf("seeded %d demo users", created)
	}

	pending := models.OrderStatusPending
	existing, err := ledger.ListOrders(OrderFilter{Status: &pending})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	orders := []models.Order{
		{
			Platform:          "fireway",
			ExternalOrderID:   "FW-1001",
			CustomerName:      "Alice Morton",
			CustomerPhone:     "+44 7700 900101",
			CustomerAddress:   "12 Baker Street, London",
			CustomerLatitude:  51.5226,
			CustomerLongitude: -0.1571,
			Items:             models.OrderItems{{Name: "Margherita Pizza", Quantity: 1}, {Name: "Garlic Bread", Quantity: 2}},
			TotalAmount:       18.50,
		},
		{
			Platform:          "just_eat",
			ExternalOrderID:   "JE-88421",
			CustomerName:      "Ben Okafor",
			CustomerPhone:     "+44 7700 900102",
			CustomerAddress:   "3 Camden High Street, London",
			CustomerLatitude:  51.5390,
			CustomerLongitude: -0.1426,
			Items:             models.OrderItems{{Name: "Pepperoni Pizza", Quantity: 2}},
			TotalAmount:       24.00,
		},
		{
			Platform:          "uber_eats",
			ExternalOrderID:   "UE-55310",
			CustomerName:      "Chloe Winters",
			CustomerPhone:     "+44 7700 900103",
			CustomerAddress:   "77 Oxford Street, London",
			CustomerLatitude:  51.5154,
			CustomerLongitude: -0.1350,
			Items:             models.OrderItems{{Name: "Veggie Supreme", Quantity: 1}, {Name: "Cola", Quantity: 2}},
			TotalAmount:       16.75,
		},
		{
			Platform:          "deliveroo",
			ExternalOrderID:   "DR-20918",
			CustomerName:      "Dan Hughes",
			CustomerPhone:     "+44 7700 900104",
			CustomerAddress:   "240 Old Kent Road, London",
			CustomerLatitude:  51.4890,
			CustomerLongitude: -0.0790,
			Items:             models.OrderItems{{Name: "BBQ Chicken Pizza", Quantity: 1}},
			TotalAmount:       13.25,
		},
	}

	for i := range orders {
		orders[i].ID = uuid.New().String()
		orders[i].Status = models.OrderStatusPending
		if err := ledger.CreateOrder(&orders[i]); err != nil {
			return err
		}
	}
	log.Printf("seeded %d demo orders", len(orders))
	return nil
}
