package enums

import "fmt"

// ProductCategory classifies catalog listings.
type ProductCategory string

const (
	CategoryFiction         ProductCategory = "Fiction"
	CategoryScience         ProductCategory = "Science"
	CategorySelfDevelopment ProductCategory = "SelfDevelopment"
	CategoryPoetry          ProductCategory = "Poetry"
	CategoryReligious       ProductCategory = "Religious"
)

var validProductCategories = []ProductCategory{
	CategoryFiction,
	CategoryScience,
	CategorySelfDevelopment,
	CategoryPoetry,
	CategoryReligious,
}

// String implements fmt.Stringer.
func (p ProductCategory) String() string {
	return string(p)
}

// IsValid reports whether the value is a known ProductCategory.
func (p ProductCategory) IsValid() bool {
	for _, candidate := range validProductCategories {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseProductCategory converts raw input into a ProductCategory.
func ParseProductCategory(value string) (ProductCategory, error) {
	for _, candidate := range validProductCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid product category %q", value)
}
