package models

type Identifier interface {
	GetId() int
}
