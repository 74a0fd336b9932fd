package session

// pendingSave is one queued answer save.
type pendingSave struct {
	QuestionID string
	OptionID   string
}

// saveQueue is the in-memory retry queue for answer saves that could not
// reach the server. Saves coalesce per question — only the newest value for
// a question survives — so a reconnect flush persists exactly one value per
// question, in first-touched order.
type saveQueue struct {
	order []string
	items map[string]string
}

func newSaveQueue() *saveQueue {
	return &saveQueue{items: make(map[string]string)}
}

func (q *saveQueue) push(questionID, optionID string) {
	if _, ok := q.items[questionID]; !ok {
		q.order = append(q.order, questionID)
	}
	q.items[questionID] = optionID
}

func (q *saveQueue) len() int {
	return len(q.order)
}

// drain returns the queued saves in order and empties the queue.
func (q *saveQueue) drain() []pendingSave {
	out := make([]pendingSave, 0, len(q.order))
	for _, qid := range q.order {
		out = append(out, pendingSave{QuestionID: qid, OptionID: q.items[qid]})
	}
	q.order = q.order[:0]
	q.items = make(map[string]string)
	return out
}
