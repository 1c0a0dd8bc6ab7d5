package domain

import (
	"encoding/json"
	"fmt"
)

// EventName identifies a realtime event variant.
type EventName string

const (
	EventOrderSuccess     EventName = "orderSuccess"
	EventNewCourse        EventName = "newCourse"
	EventNewLesson        EventName = "newLesson"
	EventCourseUpdated    EventName = "courseUpdated"
	EventNewQuestionReply EventName = "newQuestionReply"
	EventUserUpdated      EventName = "userUpdated"
)

// Event is a realtime payload. Each variant has its own payload type and the
// name selects the variant on the wire.
type Event interface {
	Name() EventName
	Text() string
}

type OrderSuccess struct {
	Message  string `json:"message"`
	CourseID string `json:"courseId"`
	OrderID  string `json:"orderId,omitempty"`
}

type NewCourse struct {
	Message    string `json:"message"`
	CourseID   string `json:"courseId"`
	CourseName string `json:"name,omitempty"`
}

type NewLesson struct {
	Message  string `json:"message"`
	CourseID string `json:"courseId"`
	LessonID string `json:"lessonId,omitempty"`
}

type CourseUpdated struct {
	Message  string `json:"message"`
	CourseID string `json:"courseId"`
}

type NewQuestionReply struct {
	Message    string `json:"message"`
	CourseID   string `json:"courseId"`
	QuestionID string `json:"questionId,omitempty"`
}

// UserUpdated carries the full refreshed session so clients can replace
// their cached identity without another request.
type UserUpdated struct {
	Message string   `json:"message"`
	User    *Session `json:"user"`
}

func (OrderSuccess) Name() EventName     { return EventOrderSuccess }
func (NewCourse) Name() EventName        { return EventNewCourse }
func (NewLesson) Name() EventName        { return EventNewLesson }
func (CourseUpdated) Name() EventName    { return EventCourseUpdated }
func (NewQuestionReply) Name() EventName { return EventNewQuestionReply }
func (UserUpdated) Name() EventName      { return EventUserUpdated }

func (e OrderSuccess) Text() string     { return e.Message }
func (e NewCourse) Text() string        { return e.Message }
func (e NewLesson) Text() string        { return e.Message }
func (e CourseUpdated) Text() string    { return e.Message }
func (e NewQuestionReply) Text() string { return e.Message }
func (e UserUpdated) Text() string      { return e.Message }

// Frame is the server-to-client wire envelope.
type Frame struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// EncodeFrame renders ev as a wire frame.
func EncodeFrame(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", ev.Name(), err)
	}
	return json.Marshal(Frame{Event: ev.Name(), Data: data})
}

// DecodeFrame parses a wire frame into its typed variant.
func DecodeFrame(b []byte) (Event, error) {
	var f Frame
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return DecodeEvent(f.Event, f.Data)
}

// DecodeEvent decodes data as the variant selected by name.
func DecodeEvent(name EventName, data []byte) (Event, error) {
	var (
		ev  Event
		err error
	)
	switch name {
	case EventOrderSuccess:
		var p OrderSuccess
		err = json.Unmarshal(data, &p)
		ev = p
	case EventNewCourse:
		var p NewCourse
		err = json.Unmarshal(data, &p)
		ev = p
	case EventNewLesson:
		var p NewLesson
		err = json.Unmarshal(data, &p)
		ev = p
	case EventCourseUpdated:
		var p CourseUpdated
		err = json.Unmarshal(data, &p)
		ev = p
	case EventNewQuestionReply:
		var p NewQuestionReply
		err = json.Unmarshal(data, &p)
		ev = p
	case EventUserUpdated:
		var p UserUpdated
		err = json.Unmarshal(data, &p)
		ev = p
	default:
		return nil, fmt.Errorf("unknown event %q", name)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", name, err)
	}
	return ev, nil
}
