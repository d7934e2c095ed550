package memory

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"schedula/booking/internal/domain"
)

// Seed is the catalog a memory store starts with. Employees, customers and services are
// managed elsewhere, so without a seed nothing can be booked.
type Seed struct {
	Employees []struct {
		ID       string `mapstructure:"id"`
		FullName string `mapstructure:"full_name"`
		Inactive bool   `mapstructure:"inactive"`
	} `mapstructure:"employees"`
	Customers []struct {
		ID       string `mapstructure:"id"`
		FullName string `mapstructure:"full_name"`
	} `mapstructure:"customers"`
	Services []struct {
		ID              string `mapstructure:"id"`
		Name            string `mapstructure:"name"`
		DurationMinutes int    `mapstructure:"duration_minutes"`
		Price           string `mapstructure:"price"`
		Inactive        bool   `mapstructure:"inactive"`
	} `mapstructure:"services"`
}

// LoadSeed reads a seed file in any format viper understands (yaml, json, toml).
func LoadSeed(path string) (Seed, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Seed{}, fmt.Errorf("read seed: %w", err)
	}
	var seed Seed
	if err := v.Unmarshal(&seed); err != nil {
		return Seed{}, fmt.Errorf("decode seed: %w", err)
	}
	return seed, nil
}

// Apply validates the whole seed before writing any of it.
func (s *Store) Apply(seed Seed) error {
	var (
		employees []domain.Employee
		customers []domain.Customer
		services  []domain.Service
	)

	for i, e := range seed.Employees {
		id, err := seedID("employees", i, e.ID)
		if err != nil {
			return err
		}
		employees = append(employees, domain.Employee{ID: id, FullName: e.FullName, IsActive: !e.Inactive})
	}
	for i, c := range seed.Customers {
		id, err := seedID("customers", i, c.ID)
		if err != nil {
			return err
		}
		customers = append(customers, domain.Customer{ID: id, FullName: c.FullName})
	}
	for i, svc := range seed.Services {
		id, err := seedID("services", i, svc.ID)
		if err != nil {
			return err
		}
		if svc.DurationMinutes <= 0 {
			return fmt.Errorf("services[%d]: duration_minutes must be positive", i)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(svc.Price))
		if err != nil {
			return fmt.Errorf("services[%d]: price: %w", i, err)
		}
		if price.IsNegative() {
			return fmt.Errorf("services[%d]: price must not be negative", i)
		}
		services = append(services, domain.Service{
			ID:              id,
			Name:            svc.Name,
			DurationMinutes: svc.DurationMinutes,
			Price:           price.Round(2),
			IsActive:        !svc.Inactive,
		})
	}

	for _, e := range employees {
		s.PutEmployee(e)
	}
	for _, c := range customers {
		s.PutCustomer(c)
	}
	for _, svc := range services {
		s.PutService(svc)
	}
	return nil
}

func seedID(section string, i int, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s[%d]: id: %w", section, i, err)
	}
	return id, nil
}
