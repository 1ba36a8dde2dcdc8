package coursekit

// Course is the compiled form of one (course, locale) pair, serialized as
// the data_<locale>.json artifact.
type Course struct {
	ID     string `json:"id"`
	Locale string `json:"locale"`

	NextCourse string `json:"nextCourse"`
	PrevCourse string `json:"prevCourse"`

	Title       string `json:"title"`
	Description string `json:"description"`
	Color       string `json:"color"`
	Trailer     string `json:"trailer,omitempty"`
	Author      string `json:"author,omitempty"`
	Level       string `json:"level,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Hero        string `json:"hero"`

	Goals    int              `json:"goals"`
	Sections []*Section       `json:"sections"`
	Steps    map[string]*Step `json:"steps"`

	AvailableLocales []string `json:"availableLocales"`

	// Pre-serialized localization bundles, embedded as strings so the
	// runtime can lazily parse them.
	BiosJSON  string `json:"biosJSON"`
	GlossJSON string `json:"glossJSON"`
	HintsJSON string `json:"hintsJSON"`
}

// Section groups consecutive steps under one heading and URL.
type Section struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Background     string   `json:"background,omitempty"`
	Locked         bool     `json:"locked,omitempty"`
	AutoTranslated bool     `json:"autoTranslated,omitempty"`
	URL            string   `json:"url"`
	Steps          []string `json:"steps"`
	Goals          int      `json:"goals"`
	Duration       int      `json:"duration"` // minutes, rounded to a multiple of 5
}

// Step is the compiled form of one step as embedded in the course artifact.
type Step struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	HTML     string   `json:"html"`
	Goals    []string `json:"goals"`
	Keywords []string `json:"keywords"`
}

// Result is the outcome of compiling one (course, locale) pair. Unchanged
// means the change cache matched and Course is nil.
type Result struct {
	Course    *Course
	SrcFile   string
	Unchanged bool
}
