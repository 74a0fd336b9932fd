package config

type WorkerKeyStruct struct {
	PersistAnswersQueue string
	PersistEventsQueue  string
	IntegrityQueue      string
}

var WorkerKey = &WorkerKeyStruct{
	PersistAnswersQueue: "persist_answers_queue",
	PersistEventsQueue:  "persist_events_queue",
	IntegrityQueue:      "integrity_recompute_queue",
}
