package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/vehicle-marketplace/internal/models"
	"github.com/ukydev/vehicle-marketplace/internal/sales"
)

// Listing is the payload of POST /vehicles.
type Listing struct {
	Make         string                  `json:"make"`
	Model        string                  `json:"model"`
	Year         int                     `json:"year"`
	Mileage      int                     `json:"mileage"`
	FuelType     string                  `json:"fuel_type"`
	Transmission string                  `json:"transmission"`
	BodyType     string                  `json:"body_type"`
	Color        string                  `json:"color"`
	Description  string                  `json:"description"`
	Condition    models.VehicleCondition `json:"condition"`
	Price        decimal.Decimal         `json:"price"`
	Location     models.Location         `json:"location"`
}

// Rule is the payload of POST /admin/commission-rules.
type Rule struct {
	Name     string                `json:"name"`
	Type     models.CommissionType `json:"type"`
	Value    decimal.Decimal       `json:"value"`
	MinPrice *decimal.Decimal      `json:"min_price,omitempty"`
	MaxPrice *decimal.Decimal      `json:"max_price,omitempty"`
	Role     *models.Role          `json:"role,omitempty"`
	Priority int                   `json:"priority"`
}

var cities = []models.Location{
	{City: "London", Lat: 51.5074, Lon: -0.1278},
	{City: "New York", Lat: 40.7128, Lon: -74.0060},
	{City: "Madrid", Lat: 40.4168, Lon: -3.7038},
	{City: "Nicosia", Lat: 35.1856, Lon: 33.3823},
	{City: "Bogotá", Lat: 4.7110, Lon: -74.0721},
	{City: "Paris", Lat: 48.8566, Lon: 2.3522},
	{City: "Istanbul", Lat: 41.0082, Lon: 28.9784},
	{City: "Cardiff", Lat: 51.4816, Lon: -3.1791},
	{City: "Los Angeles", Lat: 34.0522, Lon: -118.2437},
	{City: "Berlin", Lat: 52.5200, Lon: 13.4050},
	{City: "Tokyo", Lat: 35.6762, Lon: 139.6503},
	{City: "Toronto", Lat: 43.6532, Lon: -79.3832},
}

var catalog = map[string][]string{
	"Toyota":     {"Corolla", "Camry", "RAV4", "Prius"},
	"Ford":       {"Focus", "F-150", "Mustang", "Mach-E"},
	"BMW":        {"320i", "X5", "i4"},
	"Tesla":      {"Model 3", "Model Y"},
	"Volkswagen": {"Golf", "Passat", "ID.4"},
	"Honda":      {"Civic", "Accord", "CR-V"},
}

var (
	fuelTypes  = []string{"petrol", "diesel", "hybrid", "electric"}
	bodyTypes  = []string{"sedan", "hatchback", "suv", "pickup", "coupe"}
	colors     = []string{"black", "white", "silver", "blue", "red"}
	conditions = []models.VehicleCondition{models.ConditionNew, models.ConditionUsed, models.ConditionCertified}
)

// Seeder creates demo data through the public API.
type Seeder struct {
	apiURL string
	client *http.Client
	rng    *rand.Rand
}

// NewSeeder returns a seeder for the API rooted at apiURL.
func NewSeeder(apiURL string, rng *rand.Rand) *Seeder {
	return &Seeder{
		apiURL: apiURL,
		client: &http.Client{Timeout: 10 * time.Second},
		rng:    rng,
	}
}

func jitterLocation(base models.Location, meters float64, rng *rand.Rand) models.Location {
	latMetersPerDeg := 111320.0
	lonMetersPerDeg := 111320.0 * math.Cos(base.Lat*math.Pi/180)
	dLat := (rng.Float64()*2 - 1) * (meters / latMetersPerDeg)
	dLon := (rng.Float64()*2 - 1) * (meters / lonMetersPerDeg)
	return models.Location{City: base.City, Lat: base.Lat + dLat, Lon: base.Lon + dLon}
}

func pick(rng *rand.Rand, options []string) string {
	return options[rng.Intn(len(options))]
}

// randomListing builds a plausible listing.
func randomListing(rng *rand.Rand, now time.Time) Listing {
	makes := make([]string, 0, len(catalog))
	for m := range catalog {
		makes = append(makes, m)
	}
	// Map order is random; sort for reproducible seeds.
	sort.Strings(makes)
	brand := pick(rng, makes)
	model := pick(rng, catalog[brand])

	age := rng.Intn(10)
	condition := conditions[rng.Intn(len(conditions))]
	mileage := age*12000 + rng.Intn(8000)
	if condition == models.ConditionNew {
		age, mileage = 0, rng.Intn(50)
	}

	fuel := pick(rng, fuelTypes)
	if brand == "Tesla" {
		fuel = "electric"
	}

	// Whole hundreds between 4,000 and 60,000.
	price := decimal.NewFromInt(int64(40+rng.Intn(560)) * 100)

	return Listing{
		Make:         brand,
		Model:        model,
		Year:         now.Year() - age,
		Mileage:      mileage,
		FuelType:     fuel,
		Transmission: pick(rng, []string{"manual", "automatic"}),
		BodyType:     pick(rng, bodyTypes),
		Color:        pick(rng, colors),
		Description:  fmt.Sprintf("%d %s %s in %s condition", now.Year()-age, brand, model, condition),
		Condition:    condition,
		Price:        price,
		Location:     jitterLocation(cities[rng.Intn(len(cities))], 5000, rng),
	}
}

// defaultRules is a small tiered rule set.
func defaultRules() []Rule {
	upTo := decimal.NewFromInt(10000)
	above := decimal.NewFromInt(50000)
	dealer := models.RoleDealer
	return []Rule{
		{Name: "Dealer rate", Type: models.CommissionPercentage, Value: decimal.NewFromInt(3), Role: &dealer, Priority: 20},
		{Name: "Budget flat fee", Type: models.CommissionFixed, Value: decimal.NewFromInt(250), MaxPrice: &upTo, Priority: 10},
		{Name: "Premium rate", Type: models.CommissionPercentage, Value: decimal.RequireFromString("2.5"), MinPrice: &above, Priority: 10},
	}
}

// post sends body as JSON and decodes the response into out when status matches want.
func (s *Seeder) post(path, token string, body, out interface{}, want int) (int, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, s.apiURL+path, bytes.NewBuffer(data))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return resp.StatusCode, fmt.Errorf("POST %s failed with status: %d", path, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// Account returns a token for username, registering it on first use.
func (s *Seeder) Account(username, password string, role models.Role) (string, error) {
	var auth models.LoginResponse

	register := models.RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: password,
		Role:     role,
	}
	status, err := s.post("/auth/register", "", register, &auth, http.StatusCreated)
	if err == nil {
		log.WithFields(log.Fields{"username": username, "role": role}).Info("Registered account")
		return auth.Token, nil
	}
	if status != http.StatusConflict {
		return "", err
	}

	login := models.LoginRequest{Username: username, Password: password}
	if _, err := s.post("/auth/login", "", login, &auth, http.StatusOK); err != nil {
		return "", err
	}
	return auth.Token, nil
}

// CreateListing posts a listing and returns its id.
func (s *Seeder) CreateListing(token string, listing Listing) (string, error) {
	var created struct {
		ID string `json:"id"`
	}
	if _, err := s.post("/vehicles", token, listing, &created, http.StatusCreated); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", errors.New("invalid vehicle ID in response")
	}

	log.WithFields(log.Fields{
		"vehicle_id": created.ID,
		"make":       listing.Make,
		"model":      listing.Model,
		"price":      listing.Price.String(),
		"city":       listing.Location.City,
	}).Info("Created listing")
	return created.ID, nil
}

// CreateRules posts rules with an admin token and returns how many were stored.
func (s *Seeder) CreateRules(adminToken string, rules []Rule) int {
	created := 0
	for _, rule := range rules {
		if _, err := s.post("/admin/commission-rules", adminToken, rule, nil, http.StatusCreated); err != nil {
			log.WithError(err).WithField("rule", rule.Name).Error("Failed to create commission rule")
			continue
		}
		created++
	}
	return created
}

// PlaceOffer makes an offer at the listing price and returns the transaction number.
func (s *Seeder) PlaceOffer(buyerToken, vehicleID string) (string, error) {
	var txn models.Transaction
	body := sales.OfferRequest{VehicleID: vehicleID, Notes: "seeded offer"}
	if _, err := s.post("/transactions", buyerToken, body, &txn, http.StatusCreated); err != nil {
		return "", err
	}
	return txn.TransactionNumber, nil
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}

func main() {
	apiURL := os.Getenv("API_BASE_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080/api"
	}
	listings := envInt("SEED_LISTINGS", 20)
	offers := envInt("SEED_OFFERS", 3)
	password := os.Getenv("SEED_PASSWORD")
	if password == "" {
		password = "seedpass123"
	}

	seeder := NewSeeder(apiURL, rand.New(rand.NewSource(time.Now().UnixNano())))
	log.WithFields(log.Fields{
		"api_url":  apiURL,
		"listings": listings,
		"offers":   offers,
	}).Info("Starting marketplace seed")

	// Admins cannot self-register, so rules need a token issued elsewhere.
	if adminToken := os.Getenv("SEED_ADMIN_TOKEN"); adminToken != "" {
		n := seeder.CreateRules(adminToken, defaultRules())
		log.WithField("created_rules", n).Info("Commission rules seeded")
	}

	dealerToken, err := seeder.Account("demo-dealer", password, models.RoleDealer)
	if err != nil {
		log.WithError(err).Fatal("Failed to obtain dealer account")
	}

	ids := make([]string, 0, listings)
	now := time.Now()
	for i := 0; i < listings; i++ {
		id, err := seeder.CreateListing(dealerToken, randomListing(seeder.rng, now))
		if err != nil {
			log.WithError(err).Error("Failed to create listing")
			continue
		}
		ids = append(ids, id)
	}
	log.WithField("created_listings", len(ids)).Info("Listing creation completed")

	if offers == 0 || len(ids) == 0 {
		return
	}
	buyerToken, err := seeder.Account("demo-buyer", password, models.RoleBuyer)
	if err != nil {
		log.WithError(err).Fatal("Failed to obtain buyer account")
	}
	for i := 0; i < offers && i < len(ids); i++ {
		number, err := seeder.PlaceOffer(buyerToken, ids[i])
		if err != nil {
			log.WithError(err).WithField("vehicle_id", ids[i]).Error("Failed to place offer")
			continue
		}
		log.WithFields(log.Fields{"vehicle_id": ids[i], "transaction_number": number}).Info("Placed offer")
	}
}
