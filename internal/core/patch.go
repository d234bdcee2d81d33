package core

import "fmt"

// Commit is one source commit attached to a patch.
type Commit struct {
	Message     string
	AuthorName  string
	AuthorEmail string
}

// Patch is one entry of a patch stack.
type Patch struct {
	// ID is the diff id of the patch on the review host.
	ID   int
	PHID string
	// BaseRevision may be a native or a foreign (git) revision identifier.
	BaseRevision string
	Content      string
	Merged       bool
	Commits      []Commit
}

// Author returns the commit author in "Name <email>" form, or an empty
// string when the patch carries no author metadata.
func (p *Patch) Author() string {
	if len(p.Commits) == 0 {
		return ""
	}
	c := p.Commits[0]
	if c.AuthorName == "" || c.AuthorEmail == "" {
		return ""
	}
	return fmt.Sprintf("%s <%s>", c.AuthorName, c.AuthorEmail)
}

// PatchStack is an ordered sequence of patches, oldest first.
type PatchStack []*Patch

// Last returns the newest patch of the stack.
func (s PatchStack) Last() *Patch {
	if len(s) == 0 {
		return nil
	}
	return s[len(s)-1]
}
