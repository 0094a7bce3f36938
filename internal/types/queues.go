package types

import "github.com/privstream/privrec/pkg/queue"

// Queues bundles the two shared bounded queues between the pipeline stages.
// Capture pushes into Processing; the processing pool pushes into
// Persistence. Both use drop-newest backpressure.
type Queues struct {
	Processing  *queue.Queue[*Frame]
	Persistence *queue.Queue[*Frame]
}

func NewQueues(processingCap, persistenceCap int) *Queues {
	return &Queues{
		Processing:  queue.New[*Frame](processingCap),
		Persistence: queue.New[*Frame](persistenceCap),
	}
}
