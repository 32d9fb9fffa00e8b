package main

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

var (
	habitualMerchants = []string{"Amazon", "Swiggy", "Zomato", "Netflix", "BigBasket", "Uber"}
	categories        = []string{"Shopping", "Food", "Entertainment", "Groceries", "Travel", "Electronics"}
	rails             = []string{"UPI", "Card", "NetBanking", "Wallet"}
)

// Transaction is the POST /transactions request body.
type Transaction struct {
	UserID    string    `json:"userId"`
	Merchant  string    `json:"merchant"`
	Amount    float64   `json:"amount"`
	Time      string    `json:"time"`
	Source    string    `json:"source"`
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"`
}

// Sample is a generated transaction with its injected label.
type Sample struct {
	Tx         Transaction
	Suspicious bool
}

// Generator produces a reproducible stream of transactions. Each user has
// a habitual rail and hours; suspicious samples break those habits.
type Generator struct {
	faker          *gofakeit.Faker
	users          []string
	suspiciousRate float64
	start          time.Time
}

// NewGenerator creates a generator for n users.
func NewGenerator(seed uint64, users int, suspiciousRate float64, start time.Time) *Generator {
	f := gofakeit.New(seed)
	ids := make([]string, users)
	for i := range ids {
		ids[i] = fmt.Sprintf("sim-%04d-%s", i, f.LetterN(4))
	}
	return &Generator{faker: f, users: ids, suspiciousRate: suspiciousRate, start: start}
}

// Users returns the generated user ids.
func (g *Generator) Users() []string {
	return g.users
}

// Generate returns n samples spread across the users in order, so every
// user builds some history before a suspicious sample lands.
func (g *Generator) Generate(n int) []Sample {
	out := make([]Sample, 0, n)
	for i := 0; i < n; i++ {
		user := g.users[i%len(g.users)]
		at := g.start.Add(time.Duration(i) * 7 * time.Second)

		// The first pass over the users is always habitual
		if i >= len(g.users) && g.faker.Float64Range(0, 1) < g.suspiciousRate {
			out = append(out, Sample{Tx: g.suspicious(user, at), Suspicious: true})
			continue
		}
		out = append(out, Sample{Tx: g.habitual(user, i, at)})
	}
	return out
}

func (g *Generator) habitual(user string, i int, at time.Time) Transaction {
	hour := g.faker.IntRange(9, 20)
	return Transaction{
		UserID:    user,
		Merchant:  habitualMerchants[i%len(habitualMerchants)],
		Amount:    roundRupees(g.faker.Float64Range(80, 2500)),
		Time:      clock(hour, g.faker.IntRange(0, 59)),
		Source:    "UPI",
		Category:  g.faker.RandomString(categories[:4]),
		Timestamp: at,
	}
}

func (g *Generator) suspicious(user string, at time.Time) Transaction {
	hour := g.faker.IntRange(0, 4)
	return Transaction{
		UserID:    user,
		Merchant:  g.faker.Company(),
		Amount:    roundRupees(g.faker.Float64Range(15000, 95000)),
		Time:      clock(hour, g.faker.IntRange(0, 59)),
		Source:    g.faker.RandomString(rails),
		Category:  g.faker.RandomString(categories[4:]),
		Timestamp: at,
	}
}

func clock(hour, minute int) string {
	suffix := "AM"
	if hour >= 12 {
		suffix = "PM"
	}
	h := hour % 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d:%02d %s", h, minute, suffix)
}

func roundRupees(v float64) float64 {
	return float64(int64(v*100)) / 100
}
