package config

type WorkerKeyStruct struct {
	PersistIntegrityEventsQueue string
	PersistAnswersQueue         string
}

var WorkerKey = &WorkerKeyStruct{
	PersistIntegrityEventsQueue: "persist_integrity_events_queue",
	PersistAnswersQueue:         "persist_interview_answers_queue",
}
