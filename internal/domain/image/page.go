package image

// Page is one slice of the collection in store order.
// Cursor is the boundary after the last returned record; it is set even on
// the final page so a caller can persist it. More reports whether records
// remain past Cursor.
type Page struct {
	Records []Record
	Cursor  string
	More    bool
}

// Next returns the cursor for the following page, or "" when exhausted.
func (p Page) Next() string {
	if !p.More {
		return ""
	}
	return p.Cursor
}
