package capability

// enrichments replaces terse plugin descriptions with ones that tell the
// model when to pick the tool. Keys are schema names.
var enrichments = map[string]string{
	"memory_add":    "Remember a fact about the user for later. Use when the user asks you to remember, note, or keep something in mind.",
	"memory_get":    "Recall everything remembered about the user. Use when the user asks what you remember or refers to something they told you before.",
	"memory_forget": "Forget a remembered fact. Use when the user asks you to forget or delete something you remembered.",
	"core_timer":    "Start a countdown timer. Use for requests like 'set a timer for five minutes'; convert the duration to seconds.",
	"core_time":     "Tell the current local time. Use when the user asks what time it is.",
	"core_date":     "Tell today's date. Use when the user asks for the date or day of the week.",
	"core_reminder": "Schedule a reminder at a date and time with a note. Use for 'remind me to ...' requests; pass the datetime in RFC 3339.",
	"weather_main":  "Get the current weather for a city. Use whenever the user asks about weather, temperature, or whether to take an umbrella.",
}

// Enrich returns the longer description registered for name, or
// description unchanged.
func Enrich(name, description string) string {
	if enriched, ok := enrichments[name]; ok {
		return enriched
	}
	return description
}
