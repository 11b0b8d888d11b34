// 開発用の初期データ投入。何度実行しても重複しない
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"marketplace/internal/config"
	"marketplace/internal/domain/model"
	"marketplace/internal/infra/db"
	infraRepo "marketplace/internal/infra/repository"
	"marketplace/internal/middleware"
	repo "marketplace/internal/repository"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const devTokenTTL = 24 * time.Hour

type seedUser struct {
	email string
	role  model.Role
}

var users = []seedUser{
	{"admin@example.com", model.RoleAdmin},
	{"collaborator@example.com", model.RoleCollaborator},
	{"user@example.com", model.RoleUser},
}

var categories = []model.Category{
	{Name: "Books", Description: "Paper and e-books"},
	{Name: "Kitchen", Description: "Cookware and tableware"},
	{Name: "Stationery", Description: "Pens, notebooks and more"},
	{Name: "Clothing", Description: "Knitwear and accessories"},
}

var colors = []model.Color{
	{Name: "Black", HexCode: "#000000"},
	{Name: "White", HexCode: "#FFFFFF"},
	{Name: "Red", HexCode: "#FF0000"},
	{Name: "Blue", HexCode: "#0000FF"},
	{Name: "Yellow", HexCode: "#FFFF00"},
	{Name: "Orange", HexCode: "#FFA500"},
	{Name: "Green", HexCode: "#008000"},
	{Name: "Pink", HexCode: "#FFC0CB"},
	{Name: "Purple", HexCode: "#800080"},
	{Name: "Brown", HexCode: "#A52A2A"},
	{Name: "Gray", HexCode: "#808080"},
	{Name: "Beige", HexCode: "#F5F5DC"},
}

type seedProduct struct {
	title     string
	price     string
	stock     int64
	category  string
	color     string
	size      model.ProductSize
	materials []model.ProductMaterial
}

var products = []seedProduct{
	{title: "Go Programming Guide", price: "39.90", stock: 20, category: "Books"},
	{title: "Distributed Systems Notes", price: "24.50", stock: 5, category: "Books"},
	{title: "Stoneware Mug", price: "12.00", stock: 40, category: "Kitchen", color: "White"},
	{title: "Cast Iron Pan", price: "55.00", stock: 3, category: "Kitchen", color: "Black"},
	{title: "Dot Grid Notebook", price: "8.25", stock: 100, category: "Stationery"},
	{title: "Fountain Pen", price: "32.00", stock: 0, category: "Stationery", color: "Blue"},
	{title: "Merino Sweater", price: "69.00", stock: 6, category: "Clothing", color: "Gray", size: model.SizeM,
		materials: []model.ProductMaterial{{Material: model.MaterialWool, Percentage: 100}}},
	{title: "Linen Apron", price: "24.90", stock: 12, category: "Kitchen", color: "Beige",
		materials: []model.ProductMaterial{{Material: model.MaterialLinen, Percentage: 55}, {Material: model.MaterialCotton, Percentage: 45}}},
}

func main() {
	if err := run(context.Background()); err != nil {
		slog.Error("seed failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	if err := config.LoadDotEnv(".env", "../.env"); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	gormDB, err := db.Connect(cfg)
	if err != nil {
		return err
	}
	if err := db.Migrate(gormDB); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	password := os.Getenv("SEED_PASSWORD")
	if password == "" {
		password = "password123"
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	userRepo := infraRepo.NewUserGormRepository(gormDB)
	seeded := make([]model.User, 0, len(users))
	for _, su := range users {
		u, err := ensureUser(ctx, userRepo, su, string(hash))
		if err != nil {
			return err
		}
		seeded = append(seeded, u)
	}

	categoryIDs, err := ensureCategories(ctx, gormDB)
	if err != nil {
		return err
	}
	colorIDs, err := ensureColors(ctx, gormDB)
	if err != nil {
		return err
	}
	if err := ensureProducts(ctx, gormDB, categoryIDs, colorIDs); err != nil {
		return err
	}

	//ローカル確認用のトークン（認証基盤の代わり）
	now := time.Now()
	for _, u := range seeded {
		token, err := middleware.SignToken(cfg.JWTSecret, u, now, devTokenTTL)
		if err != nil {
			return err
		}
		fmt.Printf("%-12s %s\n", u.Role, token)
	}
	return nil
}

func ensureUser(ctx context.Context, users repo.UserRepository, su seedUser, hash string) (model.User, error) {
	u, err := users.FindByEmail(ctx, su.email)
	if err == nil {
		return *u, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return model.User{}, err
	}

	nu := &model.User{Email: su.email, PasswordHash: hash, Role: su.role, IsActive: true}
	if err := users.Create(ctx, nu); err != nil {
		return model.User{}, fmt.Errorf("create user %s: %w", su.email, err)
	}
	return *nu, nil
}

func ensureCategories(ctx context.Context, gormDB *gorm.DB) (map[string]int64, error) {
	ids := make(map[string]int64, len(categories))
	for _, c := range categories {
		if err := gormDB.WithContext(ctx).Where(model.Category{Name: c.Name}).FirstOrCreate(&c).Error; err != nil {
			return nil, fmt.Errorf("category %s: %w", c.Name, err)
		}
		ids[c.Name] = c.ID
	}
	return ids, nil
}

func ensureColors(ctx context.Context, gormDB *gorm.DB) (map[string]int64, error) {
	ids := make(map[string]int64, len(colors))
	for _, c := range colors {
		if err := gormDB.WithContext(ctx).Where(model.Color{Name: c.Name}).FirstOrCreate(&c).Error; err != nil {
			return nil, fmt.Errorf("color %s: %w", c.Name, err)
		}
		ids[c.Name] = c.ID
	}
	return ids, nil
}

// 商品が1件でもあれば何もしない
func ensureProducts(ctx context.Context, gormDB *gorm.DB, categoryIDs, colorIDs map[string]int64) error {
	var n int64
	if err := gormDB.WithContext(ctx).Model(&model.Product{}).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	productRepo := infraRepo.NewProductGormRepository(gormDB)
	attrRepo := infraRepo.NewProductAttributeGormRepository(gormDB)
	for _, sp := range products {
		p := model.Product{
			Title:       sp.title,
			Description: sp.title,
			Price:       decimal.RequireFromString(sp.price),
			Stock:       sp.stock,
			Status:      model.ProductStatusApproved,
			CategoryID:  categoryIDs[sp.category],
			Size:        sp.size,
		}
		if id, ok := colorIDs[sp.color]; ok {
			p.ColorID = &id
		}

		created, err := productRepo.Create(ctx, p)
		if err != nil {
			return fmt.Errorf("product %s: %w", sp.title, err)
		}
		if err := attrRepo.ReplaceMaterials(ctx, created.ID, sp.materials); err != nil {
			return fmt.Errorf("materials %s: %w", sp.title, err)
		}
	}
	return nil
}
