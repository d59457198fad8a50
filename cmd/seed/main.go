package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/Peterdir/travel-booking-website/internal/auth"
	"github.com/Peterdir/travel-booking-website/internal/config"
	"github.com/Peterdir/travel-booking-website/internal/database"
	"github.com/Peterdir/travel-booking-website/internal/logger"
	"github.com/Peterdir/travel-booking-website/internal/models"
	"github.com/Peterdir/travel-booking-website/internal/repository"
	"github.com/Peterdir/travel-booking-website/internal/service"
)

var (
	tourCount = flag.Int("tours", 12, "Number of demo tours to create")
	seed      = flag.Int64("seed", 1, "Random seed for prices and departures")
	dryRun    = flag.Bool("dry-run", false, "Show what would be generated without making changes")
)

var destinations = []struct {
	Location string
	Theme    string
}{
	{"Đà Lạt, Lâm Đồng", "Thành phố ngàn hoa"},
	{"Vịnh Hạ Long, Quảng Ninh", "Du thuyền ngủ đêm"},
	{"Sa Pa, Lào Cai", "Trekking ruộng bậc thang"},
	{"Hội An, Quảng Nam", "Phố cổ về đêm"},
	{"Phú Quốc, Kiên Giang", "Nghỉ dưỡng biển đảo"},
	{"Huế, Thừa Thiên Huế", "Di sản cố đô"},
	{"Ninh Bình", "Tràng An và Tam Cốc"},
	{"Mũi Né, Bình Thuận", "Đồi cát và biển"},
	{"Côn Đảo, Bà Rịa - Vũng Tàu", "Lặn biển"},
	{"Hà Giang", "Cung đường đèo"},
}

// tourGenerator строит демонстрационные туры с расписанием на ближайшие месяцы
type tourGenerator struct {
	rnd   *rand.Rand
	today time.Time
}

func (g *tourGenerator) request(i int) *models.CreateTourRequest {
	dest := destinations[i%len(destinations)]
	days := 2 + g.rnd.Intn(4)
	price := models.FlexibleInt(int64(days) * int64(800+g.rnd.Intn(1200)) * 1000)
	active := models.FlexibleBool(i%7 != 6)

	// Отправления раз в две недели, начиная со следующей недели
	var dates []models.Date
	first := g.today.AddDate(0, 0, 7+g.rnd.Intn(7))
	for d := 0; d < 4+g.rnd.Intn(4); d++ {
		dates = append(dates, models.DateOf(first.AddDate(0, 0, 14*d)))
	}

	return &models.CreateTourRequest{
		Name:        fmt.Sprintf("%s %d ngày %d đêm", dest.Theme, days, days-1),
		CoverImage:  fmt.Sprintf("https://picsum.photos/seed/tour-%d/1200/800", i),
		Description: fmt.Sprintf("%s: lịch trình %d ngày tại %s.", dest.Theme, days, dest.Location),
		Price:       &price,
		Location:    dest.Location,
		Days:        models.FlexibleInt(days),
		MaxGuests:   models.FlexibleInt(10 + 5*g.rnd.Intn(5)),
		IsActive:    &active,
		StartDates:  dates,
	}
}

func main() {
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.LogLevel, "text")

	slog.Info("Starting tour seeder...", "tours", *tourCount, "dry_run", *dryRun)

	gen := &tourGenerator{
		rnd:   rand.New(rand.NewSource(*seed)),
		today: time.Now(),
	}

	if *dryRun {
		for i := 0; i < *tourCount; i++ {
			req := gen.request(i)
			slog.Info("Would create tour", "name", req.Name, "location", req.Location,
				"price", req.Price.Int64(), "departures", len(req.StartDates))
		}
		return
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		logger.Fatal("Failed to run migrations", "error", err)
	}

	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, auth.NewTokenManager(cfg.Auth), service.Options{
		UntrackedDates: cfg.Booking.UntrackedDates,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if cfg.Auth.AdminEmail != "" {
		if err := services.Auth.EnsureAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
			logger.Fatal("Failed to create admin", "error", err)
		}
		slog.Info("Admin account is ready", "email", cfg.Auth.AdminEmail)
	}

	created := 0
	for i := 0; i < *tourCount; i++ {
		tour, err := services.Tours.Create(ctx, gen.request(i))
		if err != nil {
			slog.Error("Failed to create tour", "index", i, "error", err)
			continue
		}
		created++
		slog.Info("Created tour", "id", tour.ID, "slug", tour.Slug, "departures", len(tour.Availability))
	}

	slog.Info("Tour seeding completed", "created", created)
}
