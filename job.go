package vidstab

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// JobState represents the lifecycle state of a stabilization job.
type JobState uint8

const (
	// JobPending indicates the job has been created but not started.
	JobPending JobState = iota
	// JobRunning indicates the pipeline is running.
	JobRunning
	// JobSucceeded indicates the output was committed.
	JobSucceeded
	// JobFailed indicates the job ended with an error and no output.
	JobFailed
)

// String returns the state name.
func (s JobState) String() string {
	switch s {
	case JobPending:
		return "pending"
	case JobRunning:
		return "running"
	case JobSucceeded:
		return "succeeded"
	case JobFailed:
		return "failed"
	default:
		return fmt.Sprintf("JobState(%d)", uint8(s))
	}
}

// Terminal reports whether s is Succeeded or Failed.
func (s JobState) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// validTransitions lists the allowed state changes.
var validTransitions = map[JobState][]JobState{
	JobPending: {JobRunning, JobFailed},
	JobRunning: {JobSucceeded, JobFailed},
}

// Job is a stabilization run. Its state is written only by the goroutine
// running the pipeline; callers observe it through the accessor methods.
type Job struct {
	ID     string
	Input  string
	Output string

	mu        sync.Mutex
	state     JobState
	report    Report
	err       error
	startTime time.Time
	endTime   time.Time

	done   chan struct{}
	cancel context.CancelFunc
	log    logrus.FieldLogger
}

func newJob(input, output string) *Job {
	return &Job{
		ID:     uuid.NewString(),
		Input:  input,
		Output: output,
		state:  JobPending,
		done:   make(chan struct{}),
		cancel: func() {},
		log:    logrus.StandardLogger(),
	}
}

// State returns the current state.
func (j *Job) State() JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Done returns a channel that is closed once the job reaches a terminal
// state.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes and returns its result.
func (j *Job) Wait() (Report, error) {
	<-j.done
	return j.Result()
}

// Result returns the job result, or ErrJobNotFinished while it runs.
func (j *Job) Result() (Report, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.state.Terminal() {
		return Report{}, ErrJobNotFinished
	}
	return j.report, j.err
}

// Cancel requests cooperative cancellation. The job fails with
// ErrCancelled unless it has already finished.
func (j *Job) Cancel() {
	j.mu.Lock()
	cancel := j.cancel
	j.mu.Unlock()
	cancel()
}

// Elapsed returns the running time so far, or the total once finished.
func (j *Job) Elapsed() time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()
	switch {
	case j.startTime.IsZero():
		return 0
	case j.endTime.IsZero():
		return time.Since(j.startTime)
	default:
		return j.endTime.Sub(j.startTime)
	}
}

// transition moves the job to state to.
func (j *Job) transition(to JobState) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(to)
}

func (j *Job) transitionLocked(to JobState) error {
	for _, allowed := range validTransitions[j.state] {
		if allowed == to {
			j.log.WithFields(logrus.Fields{
				"function": "Job.transition",
				"job_id":   j.ID,
				"from":     j.state,
				"to":       to,
			}).Debug("Job state transition")

			j.state = to
			switch to {
			case JobRunning:
				j.startTime = time.Now()
			case JobSucceeded, JobFailed:
				j.endTime = time.Now()
			}
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.state, to)
}

// finish records the terminal result and closes Done exactly once.
func (j *Job) finish(report Report, err error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	to := JobSucceeded
	if err != nil {
		to = JobFailed
	}
	if terr := j.transitionLocked(to); terr != nil {
		return terr
	}
	j.report = report
	j.err = err
	close(j.done)
	return nil
}
