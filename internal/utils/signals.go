package utils

import (
	"os"
	"os/signal"
	"sync"
)

// RegisterSignalHandler calls notify for every listed signal received until
// the returned stop function is called.
func RegisterSignalHandler(notify func(os.Signal), signals ...os.Signal) func() {
	signalChannel := make(chan os.Signal, 1)
	stopChannel := make(chan struct{})
	signal.Notify(signalChannel, signals...)

	go func() {
		for {
			select {
			case receivedSignal := <-signalChannel:
				notify(receivedSignal)
			case <-stopChannel:
				return
			}
		}
	}()

	var stopOnce sync.Once
	return func() {
		stopOnce.Do(func() {
			signal.Stop(signalChannel)
			close(stopChannel)
		})
	}
}
