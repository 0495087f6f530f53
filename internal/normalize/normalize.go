package normalize

// Alias maps one known noisy spelling to its canonical name.
type Alias struct {
	From string `mapstructure:"from" yaml:"from"`
	To   string `mapstructure:"to" yaml:"to"`
}

// Normalizer canonicalizes city and state names by exact lookup.
// The zero value passes every input through unchanged.
type Normalizer struct {
	states map[string]string
	cities map[string]string
}

// New builds a Normalizer from alias lists. Later entries win on duplicate From.
func New(states, cities []Alias) *Normalizer {
	return &Normalizer{states: index(states), cities: index(cities)}
}

// Default returns a Normalizer loaded with the built-in alias tables.
func Default() *Normalizer {
	return New(DefaultStateAliases(), DefaultCityAliases())
}

func index(aliases []Alias) map[string]string {
	m := make(map[string]string, len(aliases))
	for _, a := range aliases {
		m[a.From] = a.To
	}
	return m
}

// State returns the canonical state name for raw, or raw itself when unmapped.
func (n *Normalizer) State(raw string) string {
	if n == nil {
		return raw
	}
	if v, ok := n.states[raw]; ok {
		return v
	}
	return raw
}

// City returns the canonical city name for raw, or raw itself when unmapped.
func (n *Normalizer) City(raw string) string {
	if n == nil {
		return raw
	}
	if v, ok := n.cities[raw]; ok {
		return v
	}
	return raw
}

// DefaultStateAliases lists state strings left over by label splitting
// (hub or facility words bleeding into the state part) and their canonical names.
func DefaultStateAliases() []Alias {
	return []Alias{
		{"Goa Goa", "Goa"},
		{"Delhi Delhi", "Delhi"},
		{"Layout PC Karnataka", "Karnataka"},
		{"Kothanur_L Karnataka", "Karnataka"},
		{"Vadgaon Sheri DPC Maharashtra", "Maharashtra"},
		{"Pashan DPC Maharashtra", "Maharashtra"},
		{"West _Dc Maharashtra", "Maharashtra"},
		{"West_Dc Maharashtra", "Maharashtra"},
		{"Antop Hill Maharashtra", "Maharashtra"},
		{"Balaji Nagar Maharashtra", "Maharashtra"},
		{"Rahatani DPC Maharashtra", "Maharashtra"},
		{"Mahim Maharashtra", "Maharashtra"},
		{"DC Maharashtra", "Maharashtra"},
		{"Hub Maharashtra", "Maharashtra"},
		{"City Madhya Pradesh", "Madhya Pradesh"},
		{"Mandakni Madhya Pradesh", "Madhya Pradesh"},
		{"MP Nagar Madhya Pradesh", "Madhya Pradesh"},
		{"02_DPC Uttar Pradesh", "Uttar Pradesh"},
		{"Nagar Uttar Pradesh", "Uttar Pradesh"},
		{"Nagar_DC Rajasthan", "Rajasthan"},
		{"DC Rajasthan", "Rajasthan"},
		{"Alipore_DPC West Bengal", "West Bengal"},
		{"Avenue_DPC West Bengal", "West Bengal"},
		{"_NAD Andhra Pradesh", "Andhra Pradesh"},
	}
}

// DefaultCityAliases lists abbreviations and legacy spellings of city names.
func DefaultCityAliases() []Alias {
	return []Alias{
		{"del", "Delhi"},
		{"Bangalore", "Bengaluru"},
		{"AMD", "Ahmedabad"},
		{"Amdavad", "Ahmedabad"},
	}
}
