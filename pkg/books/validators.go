package books

type ListBooksQuery struct {
	Limit  int `query:"limit" default:"24" validate:"min=1,max=100"`
	Offset int `query:"offset" validate:"min=0"`
}

// AuthorInput references an author by name. Names are the only durable author
// identity on the wire; ids assigned by this service are accepted but ignored.
type AuthorInput struct {
	ID   *int   `json:"id,omitempty"`
	Name string `json:"name" validate:"required,max=200"`
}

type CreateBookPayload struct {
	Title   string        `json:"title" validate:"required,max=300"`
	Year    *int          `json:"year,omitempty" validate:"omitempty,min=0,max=9999"`
	Authors []AuthorInput `json:"authors,omitempty" validate:"omitempty,dive"`
}

type UpdateBookPayload struct {
	Title   *string       `json:"title,omitempty" validate:"omitempty,max=300"`
	Year    *int          `json:"year,omitempty" validate:"omitempty,min=0,max=9999"`
	Authors []AuthorInput `json:"authors,omitempty" validate:"omitempty,dive"`
}

func authorNames(inputs []AuthorInput) []string {
	names := make([]string, 0, len(inputs))
	for _, input := range inputs {
		names = append(names, input.Name)
	}
	return names
}
