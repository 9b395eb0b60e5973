package models

import id "certledger/pkg/domain"

// AccountFilter narrows account listings. Query is a case-insensitive
// substring match across name and email; zero values match everything.
type AccountFilter struct {
	Query  string
	Role   id.Role
	Limit  int
	Offset int
}
