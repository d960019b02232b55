package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/immxrtalbeast/ordergroup/internal/domain"
	"github.com/immxrtalbeast/ordergroup/internal/repository"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type File struct {
	Restaurants []RestaurantSeed `yaml:"restaurants"`
}

type RestaurantSeed struct {
	Name  string     `yaml:"name"`
	Items []ItemSeed `yaml:"items"`
}

// ItemSeed keeps the price as text so it never passes through a float.
type ItemSeed struct {
	Name  string `yaml:"name"`
	Price string `yaml:"price"`
}

// Report counts rows created by one Seed run.
type Report struct {
	Restaurants int
	Items       int
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog seed: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*File, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog seed: %w", err)
	}
	for _, r := range file.Restaurants {
		if strings.TrimSpace(r.Name) == "" {
			return nil, errors.New("catalog seed: restaurant without a name")
		}
		for _, item := range r.Items {
			if _, err := parsePrice(item.Price); err != nil {
				return nil, fmt.Errorf("catalog seed: %s/%s: %w", r.Name, item.Name, err)
			}
		}
	}
	return &file, nil
}

// Seed creates missing restaurants and items. Rows that already exist are
// left alone, so running it on every boot is safe.
func Seed(ctx context.Context, repo repository.CatalogRepository, file *File, log *slog.Logger) (Report, error) {
	const op = "catalog.seed"
	log = log.With(slog.String("op", op))

	var report Report
	for _, r := range file.Restaurants {
		name := strings.TrimSpace(r.Name)
		restaurant, err := repo.GetRestaurantByName(ctx, name)
		if errors.Is(err, repository.ErrRestaurantNotFound) {
			restaurant = domain.NewRestaurant(name)
			err = repo.CreateRestaurant(ctx, restaurant)
			if errors.Is(err, repository.ErrRestaurantExists) {
				restaurant, err = repo.GetRestaurantByName(ctx, name)
			} else if err == nil {
				report.Restaurants++
			}
		}
		if err != nil {
			return report, fmt.Errorf("%s: %w", op, err)
		}

		for _, seed := range r.Items {
			price, err := parsePrice(seed.Price)
			if err != nil {
				return report, fmt.Errorf("%s: %w", op, err)
			}
			item := domain.NewMenuItem(restaurant.ID, strings.TrimSpace(seed.Name), price)
			err = repo.CreateMenuItem(ctx, item)
			if errors.Is(err, repository.ErrMenuItemExists) {
				continue
			}
			if err != nil {
				return report, fmt.Errorf("%s: %w", op, err)
			}
			report.Items++
		}
	}

	log.Info("catalog seeded", slog.Int("restaurants", report.Restaurants), slog.Int("items", report.Items))
	return report, nil
}

func parsePrice(raw string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price %q", raw)
	}
	if price.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative price %q", raw)
	}
	return price, nil
}
