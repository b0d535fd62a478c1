package dispatch

import "github.com/queuekit/queuekit-connector-bull/internal/bull"

// Command is one of the closed set of request paths the control plane may
// send.
type Command string

const (
	CmdGetQueues         Command = "getQueues"
	CmdGetIsQueuePaused  Command = "getIsQueuePaused"
	CmdGetQueueJobCounts Command = "getQueueJobCounts"
	CmdGetWaiting        Command = "getWaiting"
	CmdGetActive         Command = "getActive"
	CmdGetDelayed        Command = "getDelayed"
	CmdGetCompleted      Command = "getCompleted"
	CmdGetFailed         Command = "getFailed"
	CmdGetJob            Command = "getJob"
	CmdPauseQueue        Command = "pauseQueue"
	CmdResumeQueue       Command = "resumeQueue"
	CmdCleanQueue        Command = "cleanQueue"
	CmdEmptyQueue        Command = "emptyQueue"
	CmdDiscardJob        Command = "discardJob"
	CmdPromoteJob        Command = "promoteJob"
	CmdRemoveJob         Command = "removeJob"
	CmdRetryJob          Command = "retryJob"
)

// Commands lists every supported command.
var Commands = []Command{
	CmdGetQueues, CmdGetIsQueuePaused, CmdGetQueueJobCounts,
	CmdGetWaiting, CmdGetActive, CmdGetDelayed, CmdGetCompleted, CmdGetFailed,
	CmdGetJob, CmdPauseQueue, CmdResumeQueue, CmdCleanQueue, CmdEmptyQueue,
	CmdDiscardJob, CmdPromoteJob, CmdRemoveJob, CmdRetryJob,
}

// Mutating reports whether c changes queue or job state. Mutating commands
// are journaled.
func (c Command) Mutating() bool {
	switch c {
	case CmdPauseQueue, CmdResumeQueue, CmdCleanQueue, CmdEmptyQueue,
		CmdDiscardJob, CmdPromoteJob, CmdRemoveJob, CmdRetryJob:
		return true
	}
	return false
}

// handlerFor maps c to its handler, or nil for an unknown command.
func (d *Dispatcher) handlerFor(c Command) handler {
	switch c {
	case CmdGetQueues:
		return d.getQueues
	case CmdGetIsQueuePaused:
		return d.getIsQueuePaused
	case CmdGetQueueJobCounts:
		return d.getQueueJobCounts
	case CmdGetWaiting:
		return d.listJobs((*bull.Queue).GetWaiting)
	case CmdGetActive:
		return d.listJobs((*bull.Queue).GetActive)
	case CmdGetDelayed:
		return d.listJobs((*bull.Queue).GetDelayed)
	case CmdGetCompleted:
		return d.listJobs((*bull.Queue).GetCompleted)
	case CmdGetFailed:
		return d.listJobs((*bull.Queue).GetFailed)
	case CmdGetJob:
		return d.jobAction(nil)
	case CmdPauseQueue:
		return d.queueAction(pauseQueue)
	case CmdResumeQueue:
		return d.queueAction(resumeQueue)
	case CmdCleanQueue:
		return d.cleanQueue
	case CmdEmptyQueue:
		return d.queueAction(emptyQueue)
	case CmdDiscardJob:
		return d.jobAction(discardJob)
	case CmdPromoteJob:
		return d.jobAction(promoteJob)
	case CmdRemoveJob:
		return d.removeJob
	case CmdRetryJob:
		return d.jobAction(retryJob)
	}
	return nil
}
