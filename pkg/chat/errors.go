package chat

import "errors"

var (
	// ErrEmptyInput is returned before any provider is called when the user
	// message is empty or only whitespace.
	ErrEmptyInput = errors.New("no message provided")

	// ErrRetrieval wraps failures of the retrieval provider.
	ErrRetrieval = errors.New("retrieval failed")

	// ErrCompletion wraps failures of the completion provider, whether
	// before the first fragment or mid-stream.
	ErrCompletion = errors.New("completion failed")

	// ErrStreamConsumed is yielded when a response stream is ranged over a
	// second time.
	ErrStreamConsumed = errors.New("response stream already consumed")
)
