package domain

import (
	"strings"
	"time"
)

// Category — категория каталога. Значения приходят в разном регистре и
// с пробелами, поэтому перед сохранением они нормализуются.
type Category string

const (
	CategoryTShirts  Category = "t-shirts"
	CategoryShirts   Category = "shirts"
	CategoryJeans    Category = "jeans"
	CategoryTrousers Category = "trousers"
	CategoryHoodies  Category = "hoodies"
)

// NormalizeCategory приводит произвольную строку к известной категории.
// Второе значение false, если категория не распознана.
func NormalizeCategory(raw string) (Category, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, " ", "-")
	switch s {
	case "t-shirts", "t-shirt", "tshirt", "tshirts":
		return CategoryTShirts, true
	case "shirts", "shirt":
		return CategoryShirts, true
	case "jeans":
		return CategoryJeans, true
	case "trousers", "trouser", "pants":
		return CategoryTrousers, true
	case "hoodies", "hoodie":
		return CategoryHoodies, true
	default:
		return Category(s), false
	}
}

// Variant — складская единица товара: размер, цвет и остаток.
type Variant struct {
	Size  string
	Color string
	Stock int
}

// Matches сравнивает вариант по размеру и цвету без учёта регистра.
func (v Variant) Matches(size, color string) bool {
	return strings.EqualFold(strings.TrimSpace(v.Size), strings.TrimSpace(size)) &&
		strings.EqualFold(strings.TrimSpace(v.Color), strings.TrimSpace(color))
}

// Product описывает карточку каталога. Остатки меняет только InventoryLedger.
type Product struct {
	ID          string
	Name        string
	Brand       string
	Category    Category
	Description string
	Image       string
	Images      []string
	PriceMinor  int64
	Variants    []Variant
	// CountInStock используется, если у товара нет вариантов.
	CountInStock int
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasVariants сообщает, ведётся ли учёт по вариантам.
func (p *Product) HasVariants() bool {
	return len(p.Variants) > 0
}

// FindVariant возвращает вариант по размеру и цвету.
func (p *Product) FindVariant(size, color string) (Variant, bool) {
	for _, v := range p.Variants {
		if v.Matches(size, color) {
			return v, true
		}
	}
	return Variant{}, false
}

// Available возвращает доступный остаток для пары размер/цвет.
func (p *Product) Available(size, color string) (int, error) {
	if !p.HasVariants() {
		return p.CountInStock, nil
	}
	v, ok := p.FindVariant(size, color)
	if !ok {
		return 0, ErrVariantNotFound
	}
	return v.Stock, nil
}

// Validate проверяет поля товара перед сохранением.
func (p *Product) Validate() []error {
	var errs []error

	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, ErrProductNameRequired)
	}
	if p.PriceMinor < 0 {
		errs = append(errs, ErrProductPriceInvalid)
	}
	if p.CountInStock < 0 {
		errs = append(errs, ErrStockNegative)
	}
	for _, v := range p.Variants {
		if v.Stock < 0 {
			errs = append(errs, ErrStockNegative)
			break
		}
	}

	return errs
}

// Clone возвращает глубокую копию, чтобы хранилища не делили срезы с вызывающим кодом.
func (p Product) Clone() Product {
	dst := p
	dst.Images = append([]string(nil), p.Images...)
	dst.Variants = append([]Variant(nil), p.Variants...)
	return dst
}
