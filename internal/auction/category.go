package auction

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidCategory = errors.New("invalid category")

// Category buckets item types for browsing.
type Category string

const (
	CategoryAll     Category = "ALL"
	CategoryWeapons Category = "WEAPONS"
	CategoryArmor   Category = "ARMOR"
	CategoryBlocks  Category = "BLOCKS"
	CategoryMisc    Category = "MISC"
)

var weaponMarkers = []string{"SWORD", "AXE", "PICKAXE", "SHOVEL", "HOE", "TRIDENT", "BOW", "CROSSBOW", "ARROW"}

var armorMarkers = []string{"HELMET", "CHESTPLATE", "LEGGINGS", "BOOTS"}

var blockMarkers = []string{
	"_ORE", "_BLOCK", "_LOG", "_PLANKS", "_SLAB", "_STAIRS", "_FENCE", "_DOOR", "_TRAPDOOR",
	"_PRESSURE_PLATE", "_BUTTON", "STONE", "GRASS", "DIRT", "COBBLESTONE", "GRAVEL", "SAND",
	"GLASS", "WOOL", "CARPET",
}

func (c Category) markers() []string {
	switch c {
	case CategoryWeapons:
		return weaponMarkers
	case CategoryArmor:
		return armorMarkers
	case CategoryBlocks:
		return blockMarkers
	}
	return nil
}

// ParseCategory parses s case-insensitively. An empty string is ALL.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case "":
		return CategoryAll, nil
	case CategoryAll, CategoryWeapons, CategoryArmor, CategoryBlocks, CategoryMisc:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

// CategoryOf returns the first bucket whose markers occur in itemType,
// checking weapons, then armor, then blocks. Everything else is MISC.
func CategoryOf(itemType string) Category {
	t := strings.ToUpper(itemType)
	for _, c := range []Category{CategoryWeapons, CategoryArmor, CategoryBlocks} {
		if containsAny(t, c.markers()) {
			return c
		}
	}
	return CategoryMisc
}

// Matches reports whether itemType falls in c. MISC matches only types no
// other bucket claims.
func (c Category) Matches(itemType string) bool {
	switch c {
	case CategoryAll, "":
		return true
	case CategoryMisc:
		return CategoryOf(itemType) == CategoryMisc
	}
	return containsAny(strings.ToUpper(itemType), c.markers())
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
