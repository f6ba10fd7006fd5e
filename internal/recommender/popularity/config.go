package popularity

type Config struct {
	ViewWeight        float64
	ApplicationWeight float64
	BookmarkWeight    float64
	// HalfLifeDays is the decay constant in exp(-ageDays/HalfLifeDays).
	HalfLifeDays float64
	// RecencyHalfLifeDays drives RecentActivity.
	RecencyHalfLifeDays float64
}

func LoadConfig() *Config {
	return &Config{
		ViewWeight:          1,
		ApplicationWeight:   3,
		BookmarkWeight:      5,
		HalfLifeDays:        14,
		RecencyHalfLifeDays: 7,
	}
}
