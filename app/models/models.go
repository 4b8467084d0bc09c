package models

// All returns every model managed by AutoMigrate, in dependency order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&SubscriptionTier{},
		&Product{},
		&Post{},
		&Subscription{},
		&Payment{},
		&Purchase{},
		&DMPayment{},
		&Tip{},
		&PayoutMethod{},
		&Payout{},
		&Refund{},
		&WebhookEvent{},
	}
}
