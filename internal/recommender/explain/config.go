package explain

type Config struct {
	MaxReasons      int
	MinContribution float64
	MaxSkillsListed int
}

func LoadConfig() *Config {
	return &Config{
		MaxReasons:      3,
		MinContribution: 0.05,
		MaxSkillsListed: 3,
	}
}
