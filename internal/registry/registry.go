package registry

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Registry provides CRUD operations for restaurants, menus, dishes, and the
// allergen catalog, backed by SQLite.
type Registry struct {
	db *sql.DB
}

// New opens (or creates) the registry database in dir.
func New(dir string) (*Registry, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create registry dir: %w", err)
	}

	dbPath := filepath.Join(dir, "menushield.db")
	dsn := dbPath + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
			"foreign_keys(ON)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open registry db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	r := &Registry{db: db}
	if err := r.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := r.seedAllergenCatalog(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Registry) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS restaurants (
		id                     TEXT PRIMARY KEY,
		owner_id               TEXT NOT NULL DEFAULT '',
		name                   TEXT NOT NULL DEFAULT '',
		slug                   TEXT NOT NULL UNIQUE,
		theme_primary_color    TEXT NOT NULL DEFAULT '',
		theme_background_color TEXT NOT NULL DEFAULT '',
		theme_text_color       TEXT NOT NULL DEFAULT '',
		theme_accent_color     TEXT NOT NULL DEFAULT '',
		theme_font_family      TEXT NOT NULL DEFAULT '',
		stripe_customer_id     TEXT NOT NULL DEFAULT '',
		stripe_subscription_id TEXT NOT NULL DEFAULT '',
		stripe_price_id        TEXT NOT NULL DEFAULT '',
		plan                   TEXT NOT NULL DEFAULT 'starter',
		subscription_plan      TEXT NOT NULL DEFAULT '',
		subscription_status    TEXT NOT NULL DEFAULT '',
		created_at             INTEGER NOT NULL,
		updated_at             INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_restaurants_owner ON restaurants(owner_id);
	CREATE INDEX IF NOT EXISTS idx_restaurants_stripe_customer_id ON restaurants(stripe_customer_id);

	CREATE TABLE IF NOT EXISTS menus (
		id            TEXT PRIMARY KEY,
		restaurant_id TEXT NOT NULL REFERENCES restaurants(id) ON DELETE CASCADE,
		name          TEXT NOT NULL DEFAULT '',
		position      INTEGER NOT NULL DEFAULT 0,
		created_at    INTEGER NOT NULL,
		updated_at    INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_menus_restaurant ON menus(restaurant_id);

	CREATE TABLE IF NOT EXISTS dishes (
		id             TEXT PRIMARY KEY,
		menu_id        TEXT NOT NULL REFERENCES menus(id) ON DELETE CASCADE,
		name           TEXT NOT NULL DEFAULT '',
		description    TEXT NOT NULL DEFAULT '',
		price_cents    INTEGER NOT NULL DEFAULT 0,
		category       TEXT NOT NULL DEFAULT '',
		allergen_codes TEXT NOT NULL DEFAULT '[]',
		image_url      TEXT NOT NULL DEFAULT '',
		position       INTEGER NOT NULL DEFAULT 0,
		created_at     INTEGER NOT NULL,
		updated_at     INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_dishes_menu ON dishes(menu_id);

	CREATE TABLE IF NOT EXISTS allergens (
		code          TEXT NOT NULL,
		restaurant_id TEXT NOT NULL DEFAULT '',
		name          TEXT NOT NULL DEFAULT '',
		description   TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (code, restaurant_id)
	);
	`
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("init registry schema: %w", err)
	}
	return nil
}

// defaultAllergens is the EU-14 allergen catalog shipped with every install.
var defaultAllergens = []AllergenCatalogEntry{
	{Code: "GL", Name: "Gluten"},
	{Code: "CR", Name: "Crustaceans"},
	{Code: "EG", Name: "Eggs"},
	{Code: "FI", Name: "Fish"},
	{Code: "PE", Name: "Peanuts"},
	{Code: "SO", Name: "Soybeans"},
	{Code: "MI", Name: "Milk"},
	{Code: "NU", Name: "Tree nuts"},
	{Code: "CE", Name: "Celery"},
	{Code: "MU", Name: "Mustard"},
	{Code: "SE", Name: "Sesame"},
	{Code: "SU", Name: "Sulphites"},
	{Code: "LU", Name: "Lupin"},
	{Code: "MO", Name: "Molluscs"},
}

func (r *Registry) seedAllergenCatalog() error {
	for _, a := range defaultAllergens {
		_, err := r.db.Exec(`INSERT OR IGNORE INTO allergens (code, restaurant_id, name, description)
			VALUES (?, '', ?, ?)`, a.Code, a.Name, a.Description)
		if err != nil {
			return fmt.Errorf("seed allergen %s: %w", a.Code, err)
		}
	}
	return nil
}

// Ping checks database connectivity (used for readiness probes).
func (r *Registry) Ping() error {
	return r.db.Ping()
}

// Close closes the underlying database connection.
func (r *Registry) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// --- Restaurants ---

const restaurantColumns = `id, owner_id, name, slug,
	theme_primary_color, theme_background_color, theme_text_color, theme_accent_color, theme_font_family,
	stripe_customer_id, stripe_subscription_id, stripe_price_id,
	plan, subscription_plan, subscription_status, created_at, updated_at`

// CreateRestaurant inserts a new restaurant record.
func (r *Registry) CreateRestaurant(rest *Restaurant) error {
	if rest == nil {
		return fmt.Errorf("restaurant is nil")
	}
	now := time.Now().UTC()
	if rest.CreatedAt.IsZero() {
		rest.CreatedAt = now
	}
	rest.UpdatedAt = now
	if rest.Plan == "" {
		rest.Plan = "starter"
	}

	_, err := r.db.Exec(`
		INSERT INTO restaurants (
			id, owner_id, name, slug,
			theme_primary_color, theme_background_color, theme_text_color, theme_accent_color, theme_font_family,
			stripe_customer_id, stripe_subscription_id, stripe_price_id,
			plan, subscription_plan, subscription_status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rest.ID, rest.OwnerID, rest.Name, rest.Slug,
		rest.ThemePrimaryColor, rest.ThemeBackgroundColor, rest.ThemeTextColor, rest.ThemeAccentColor, rest.ThemeFontFamily,
		rest.StripeCustomerID, rest.StripeSubscriptionID, rest.StripePriceID,
		rest.Plan, rest.SubscriptionPlan, rest.SubscriptionStatus, rest.CreatedAt.Unix(), rest.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create restaurant: %w", err)
	}
	return nil
}

// GetRestaurant retrieves a restaurant by ID.
func (r *Registry) GetRestaurant(id string) (*Restaurant, error) {
	row := r.db.QueryRow(`SELECT `+restaurantColumns+` FROM restaurants WHERE id = ?`, id)
	return scanRestaurant(row)
}

// GetRestaurantBySlug retrieves a restaurant by its public slug.
func (r *Registry) GetRestaurantBySlug(slug string) (*Restaurant, error) {
	row := r.db.QueryRow(`SELECT `+restaurantColumns+` FROM restaurants WHERE slug = ?`, slug)
	return scanRestaurant(row)
}

// GetRestaurantByStripeCustomerID retrieves a restaurant by Stripe customer ID.
func (r *Registry) GetRestaurantByStripeCustomerID(customerID string) (*Restaurant, error) {
	row := r.db.QueryRow(`SELECT `+restaurantColumns+` FROM restaurants WHERE stripe_customer_id = ?`, customerID)
	return scanRestaurant(row)
}

// ListRestaurantsByOwner returns the restaurants owned by a user.
func (r *Registry) ListRestaurantsByOwner(ownerID string) ([]*Restaurant, error) {
	rows, err := r.db.Query(`SELECT `+restaurantColumns+` FROM restaurants WHERE owner_id = ? ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list restaurants by owner: %w", err)
	}
	defer rows.Close()

	var out []*Restaurant
	for rows.Next() {
		rest, err := scanRestaurant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rest)
	}
	return out, rows.Err()
}

// UpdateRestaurantProfile modifies the dashboard-owned fields (name, slug,
// theme). Billing-owned fields are untouched.
func (r *Registry) UpdateRestaurantProfile(rest *Restaurant) error {
	if rest == nil {
		return fmt.Errorf("restaurant is nil")
	}
	rest.UpdatedAt = time.Now().UTC()

	res, err := r.db.Exec(`
		UPDATE restaurants SET
			name = ?, slug = ?,
			theme_primary_color = ?, theme_background_color = ?, theme_text_color = ?,
			theme_accent_color = ?, theme_font_family = ?,
			updated_at = ?
		WHERE id = ?`,
		rest.Name, rest.Slug,
		rest.ThemePrimaryColor, rest.ThemeBackgroundColor, rest.ThemeTextColor,
		rest.ThemeAccentColor, rest.ThemeFontFamily,
		rest.UpdatedAt.Unix(), rest.ID,
	)
	if err != nil {
		return fmt.Errorf("update restaurant: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("restaurant %q not found", rest.ID)
	}
	return nil
}

// ApplyBillingByID overwrites the billing-owned fields of a restaurant,
// keyed by restaurant id. Returns the number of rows updated so callers can
// distinguish a missing restaurant from a no-op.
func (r *Registry) ApplyBillingByID(restaurantID string, f BillingFields) (int64, error) {
	return r.applyBilling(`id = ?`, restaurantID, f)
}

// ApplyBillingByStripeCustomerID overwrites billing fields keyed by Stripe
// customer id. The customer id column itself is not rewritten: once linked,
// it is never cleared.
func (r *Registry) ApplyBillingByStripeCustomerID(customerID string, f BillingFields) (int64, error) {
	if f.StripeCustomerID == "" {
		f.StripeCustomerID = customerID
	}
	return r.applyBilling(`stripe_customer_id = ?`, customerID, f)
}

func (r *Registry) applyBilling(predicate, key string, f BillingFields) (int64, error) {
	res, err := r.db.Exec(`
		UPDATE restaurants SET
			stripe_customer_id = ?, stripe_subscription_id = ?, stripe_price_id = ?,
			plan = ?, subscription_status = ?, updated_at = ?
		WHERE `+predicate,
		f.StripeCustomerID, f.StripeSubscriptionID, f.StripePriceID,
		f.Plan, f.SubscriptionStatus, time.Now().UTC().Unix(),
		key,
	)
	if err != nil {
		return 0, fmt.Errorf("apply billing fields: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("apply billing fields: %w", err)
	}
	return affected, nil
}

// DeleteRestaurant removes a restaurant and, via cascade, its menus and dishes.
func (r *Registry) DeleteRestaurant(id string) error {
	if _, err := r.db.Exec(`DELETE FROM restaurants WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete restaurant: %w", err)
	}
	return nil
}

// --- Menus ---

// CreateMenu inserts a new menu record.
func (r *Registry) CreateMenu(m *Menu) error {
	if m == nil {
		return fmt.Errorf("menu is nil")
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	_, err := r.db.Exec(`
		INSERT INTO menus (id, restaurant_id, name, position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.RestaurantID, m.Name, m.Position, m.CreatedAt.Unix(), m.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create menu: %w", err)
	}
	return nil
}

// GetMenu retrieves a menu by ID.
func (r *Registry) GetMenu(id string) (*Menu, error) {
	row := r.db.QueryRow(`SELECT id, restaurant_id, name, position, created_at, updated_at
		FROM menus WHERE id = ?`, id)
	return scanMenu(row)
}

// ListMenus returns a restaurant's menus ordered by position.
func (r *Registry) ListMenus(restaurantID string) ([]*Menu, error) {
	rows, err := r.db.Query(`SELECT id, restaurant_id, name, position, created_at, updated_at
		FROM menus WHERE restaurant_id = ? ORDER BY position, created_at`, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("list menus: %w", err)
	}
	defer rows.Close()

	var out []*Menu
	for rows.Next() {
		m, err := scanMenu(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountMenus returns the number of menus a restaurant has (plan gate input).
func (r *Registry) CountMenus(restaurantID string) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM menus WHERE restaurant_id = ?`, restaurantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count menus: %w", err)
	}
	return n, nil
}

// DeleteMenu removes a menu and its dishes.
func (r *Registry) DeleteMenu(id string) error {
	if _, err := r.db.Exec(`DELETE FROM menus WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete menu: %w", err)
	}
	return nil
}

// --- Dishes ---

const dishColumns = `id, menu_id, name, description, price_cents, category,
	allergen_codes, image_url, position, created_at, updated_at`

// CreateDish inserts a new dish record.
func (r *Registry) CreateDish(d *Dish) error {
	if d == nil {
		return fmt.Errorf("dish is nil")
	}
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	codes, err := encodeCodes(d.AllergenCodes)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(`
		INSERT INTO dishes (id, menu_id, name, description, price_cents, category,
			allergen_codes, image_url, position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.MenuID, d.Name, d.Description, d.PriceCents, d.Category,
		codes, d.ImageURL, d.Position, d.CreatedAt.Unix(), d.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create dish: %w", err)
	}
	return nil
}

// GetDish retrieves a dish by ID.
func (r *Registry) GetDish(id string) (*Dish, error) {
	row := r.db.QueryRow(`SELECT `+dishColumns+` FROM dishes WHERE id = ?`, id)
	return scanDish(row)
}

// UpdateDish modifies an existing dish record.
func (r *Registry) UpdateDish(d *Dish) error {
	if d == nil {
		return fmt.Errorf("dish is nil")
	}
	d.UpdatedAt = time.Now().UTC()

	codes, err := encodeCodes(d.AllergenCodes)
	if err != nil {
		return err
	}
	res, err := r.db.Exec(`
		UPDATE dishes SET
			name = ?, description = ?, price_cents = ?, category = ?,
			allergen_codes = ?, image_url = ?, position = ?, updated_at = ?
		WHERE id = ?`,
		d.Name, d.Description, d.PriceCents, d.Category,
		codes, d.ImageURL, d.Position, d.UpdatedAt.Unix(), d.ID,
	)
	if err != nil {
		return fmt.Errorf("update dish: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("dish %q not found", d.ID)
	}
	return nil
}

// SetDishImage records the public URL of an uploaded dish photo.
func (r *Registry) SetDishImage(dishID, imageURL string) error {
	res, err := r.db.Exec(`UPDATE dishes SET image_url = ?, updated_at = ? WHERE id = ?`,
		imageURL, time.Now().UTC().Unix(), dishID)
	if err != nil {
		return fmt.Errorf("set dish image: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("dish %q not found", dishID)
	}
	return nil
}

// DeleteDish removes a dish.
func (r *Registry) DeleteDish(id string) error {
	if _, err := r.db.Exec(`DELETE FROM dishes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete dish: %w", err)
	}
	return nil
}

// ListDishes returns a menu's dishes ordered by position.
func (r *Registry) ListDishes(menuID string) ([]*Dish, error) {
	rows, err := r.db.Query(`SELECT `+dishColumns+` FROM dishes WHERE menu_id = ? ORDER BY position, created_at`, menuID)
	if err != nil {
		return nil, fmt.Errorf("list dishes: %w", err)
	}
	defer rows.Close()
	return scanDishes(rows)
}

// ListDishesByRestaurant returns every dish across a restaurant's menus,
// ordered by menu position then dish position. This feeds the public menu.
func (r *Registry) ListDishesByRestaurant(restaurantID string) ([]*Dish, error) {
	rows, err := r.db.Query(`
		SELECT d.id, d.menu_id, d.name, d.description, d.price_cents, d.category,
			d.allergen_codes, d.image_url, d.position, d.created_at, d.updated_at
		FROM dishes d
		JOIN menus m ON m.id = d.menu_id
		WHERE m.restaurant_id = ?
		ORDER BY m.position, m.created_at, d.position, d.created_at`, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("list dishes by restaurant: %w", err)
	}
	defer rows.Close()
	return scanDishes(rows)
}

// --- Allergen catalog ---

// ListAllergens returns the global catalog plus the restaurant's extensions,
// ordered by code. Pass restaurantID "" for the global catalog alone.
func (r *Registry) ListAllergens(restaurantID string) ([]*AllergenCatalogEntry, error) {
	rows, err := r.db.Query(`SELECT code, restaurant_id, name, description
		FROM allergens WHERE restaurant_id = '' OR restaurant_id = ? ORDER BY code`, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("list allergens: %w", err)
	}
	defer rows.Close()

	var out []*AllergenCatalogEntry
	for rows.Next() {
		var a AllergenCatalogEntry
		if err := rows.Scan(&a.Code, &a.RestaurantID, &a.Name, &a.Description); err != nil {
			return nil, fmt.Errorf("scan allergen: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// UpsertAllergen creates or replaces a restaurant-defined allergen entry.
// Global entries (empty restaurant id) are reserved for the seed catalog.
func (r *Registry) UpsertAllergen(a *AllergenCatalogEntry) error {
	if a == nil {
		return fmt.Errorf("allergen is nil")
	}
	code := strings.ToUpper(strings.TrimSpace(a.Code))
	if code == "" {
		return fmt.Errorf("allergen code is required")
	}
	if strings.TrimSpace(a.RestaurantID) == "" {
		return fmt.Errorf("restaurant id is required for catalog extensions")
	}
	a.Code = code

	_, err := r.db.Exec(`INSERT OR REPLACE INTO allergens (code, restaurant_id, name, description)
		VALUES (?, ?, ?, ?)`, a.Code, a.RestaurantID, a.Name, a.Description)
	if err != nil {
		return fmt.Errorf("upsert allergen: %w", err)
	}
	return nil
}

// DeleteAllergen removes a restaurant-defined allergen entry.
func (r *Registry) DeleteAllergen(restaurantID, code string) error {
	if strings.TrimSpace(restaurantID) == "" {
		return fmt.Errorf("restaurant id is required")
	}
	_, err := r.db.Exec(`DELETE FROM allergens WHERE code = ? AND restaurant_id = ?`,
		strings.ToUpper(strings.TrimSpace(code)), restaurantID)
	if err != nil {
		return fmt.Errorf("delete allergen: %w", err)
	}
	return nil
}

// --- scanning helpers ---

// scanner is an interface satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRestaurant(s scanner) (*Restaurant, error) {
	var rest Restaurant
	var createdAt, updatedAt int64

	err := s.Scan(
		&rest.ID, &rest.OwnerID, &rest.Name, &rest.Slug,
		&rest.ThemePrimaryColor, &rest.ThemeBackgroundColor, &rest.ThemeTextColor,
		&rest.ThemeAccentColor, &rest.ThemeFontFamily,
		&rest.StripeCustomerID, &rest.StripeSubscriptionID, &rest.StripePriceID,
		&rest.Plan, &rest.SubscriptionPlan, &rest.SubscriptionStatus,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan restaurant: %w", err)
	}
	rest.CreatedAt = time.Unix(createdAt, 0).UTC()
	rest.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &rest, nil
}

func scanMenu(s scanner) (*Menu, error) {
	var m Menu
	var createdAt, updatedAt int64
	err := s.Scan(&m.ID, &m.RestaurantID, &m.Name, &m.Position, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan menu: %w", err)
	}
	m.CreatedAt = time.Unix(createdAt, 0).UTC()
	m.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &m, nil
}

func scanDish(s scanner) (*Dish, error) {
	var d Dish
	var codes string
	var createdAt, updatedAt int64

	err := s.Scan(
		&d.ID, &d.MenuID, &d.Name, &d.Description, &d.PriceCents, &d.Category,
		&codes, &d.ImageURL, &d.Position, &createdAt, &updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan dish: %w", err)
	}
	d.AllergenCodes = decodeCodes(codes)
	d.CreatedAt = time.Unix(createdAt, 0).UTC()
	d.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &d, nil
}

func scanDishes(rows *sql.Rows) ([]*Dish, error) {
	var dishes []*Dish
	for rows.Next() {
		d, err := scanDish(rows)
		if err != nil {
			return nil, err
		}
		dishes = append(dishes, d)
	}
	return dishes, rows.Err()
}

func encodeCodes(codes []string) (string, error) {
	if codes == nil {
		codes = []string{}
	}
	b, err := json.Marshal(codes)
	if err != nil {
		return "", fmt.Errorf("encode allergen codes: %w", err)
	}
	return string(b), nil
}

// decodeCodes tolerates malformed rows: anything unparseable becomes an empty
// set rather than an error surfacing to the filter engine.
func decodeCodes(raw string) []string {
	var codes []string
	if err := json.Unmarshal([]byte(raw), &codes); err != nil || codes == nil {
		return []string{}
	}
	return codes
}
