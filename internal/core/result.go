package core

// ResultMode is the outcome taxonomy reported back to the review host.
type ResultMode string

const (
	ResultWork           ResultMode = "work"
	ResultSuccess        ResultMode = "success"
	ResultFailGeneral    ResultMode = "fail:general"
	ResultFailMercurial  ResultMode = "fail:mercurial"
	ResultFailIneligible ResultMode = "fail:ineligible"
)

// Result is the terminal, typed outcome of processing a build.
type Result struct {
	Mode    ResultMode
	Build   *Build
	Message string

	// Set on success.
	TreeherderURL string
	Revision      string
	TestSelection bool
}

// Failed reports whether the result must be published as a build failure.
func (r *Result) Failed() bool {
	return r.Mode == ResultFailGeneral || r.Mode == ResultFailMercurial
}
