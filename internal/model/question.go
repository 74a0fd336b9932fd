package model

import (
	"github.com/google/uuid"
)

// Option is one selectable choice of a multiple-choice question.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question is read-only to this subsystem: text, ordered options, the id of
// the correct option and the marks awarded if correct. Immutable for the
// lifetime of a published exam.
type Question struct {
	ID            uuid.UUID `json:"id"`
	ExamID        uuid.UUID `json:"exam_id"`
	Text          string    `json:"text"`
	Options       []Option  `json:"options"`
	CorrectOption string    `json:"correct_option"`
	Marks         int       `json:"marks"`
	OrderNum      int       `json:"order_num"`
}
