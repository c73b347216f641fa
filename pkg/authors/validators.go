package authors

// ListAuthorsQuery is the query params for the list authors endpoint.
type ListAuthorsQuery struct {
	Limit  int `query:"limit" default:"24" validate:"min=1,max=100"`
	Offset int `query:"offset" validate:"min=0"`
}
