package eventbus

import (
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"
)

// EventBus delivers published events to every subscribed handler whose
// signature matches the published arguments. Handlers are plain functions
// matched by parameter types, so modules react to each other's domain events
// without holding references to each other's services.
type EventBus interface {
	Publish(args ...interface{})
	Subscribe(handler interface{})
	Unsubscribe(handler interface{})
	Clear()
	SubscribersCount() int
}

type publisherImpl struct {
	log      *logrus.Logger
	mu       sync.RWMutex
	handlers []interface{}
}

func NewEventPublisher(log *logrus.Logger) EventBus {
	return &publisherImpl{log: log}
}

// matchSignature reports whether handler is a func whose parameters accept
// args positionally. Interface parameters match any implementing argument;
// nil arguments match interface and pointer parameters.
func matchSignature(handler interface{}, args []interface{}) bool {
	t := reflect.TypeOf(handler)
	if t.Kind() != reflect.Func {
		return false
	}
	if t.NumIn() != len(args) {
		return false
	}

	for i, arg := range args {
		paramType := t.In(i)
		if arg == nil {
			if paramType.Kind() != reflect.Interface && paramType.Kind() != reflect.Ptr {
				return false
			}
			continue
		}
		argType := reflect.TypeOf(arg)
		if paramType.Kind() == reflect.Interface {
			if !argType.Implements(paramType) {
				return false
			}
			continue
		}
		if !argType.AssignableTo(paramType) {
			return false
		}
	}
	return true
}

// Publish invokes every matching handler synchronously. Aggregation workers
// publish from detached goroutines, so the handler list is read under lock
// and copied before calling out.
func (p *publisherImpl) Publish(args ...interface{}) {
	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		in[i] = reflect.ValueOf(arg)
	}

	p.mu.RLock()
	handlers := make([]interface{}, len(p.handlers))
	copy(handlers, p.handlers)
	p.mu.RUnlock()

	handled := false
	for _, handler := range handlers {
		if !matchSignature(handler, args) {
			continue
		}
		p.call(handler, in)
		handled = true
	}
	if !handled && p.log != nil {
		p.log.Warnf("eventbus: no subscriber for event with args %v", args)
	}
}

// call runs one handler, recovering a panic so a failing subscriber cannot
// take down the publisher or starve the subscribers after it.
func (p *publisherImpl) call(handler interface{}, in []reflect.Value) {
	v := reflect.ValueOf(handler)
	defer func() {
		if r := recover(); r != nil && p.log != nil {
			p.log.Errorf("eventbus: handler %s panicked: %v", v.Type(), r)
		}
	}()
	v.Call(in)
}

func (p *publisherImpl) Subscribe(handler interface{}) {
	if reflect.TypeOf(handler).Kind() != reflect.Func {
		panic("eventbus: handler must be a function")
	}
	p.mu.Lock()
	p.handlers = append(p.handlers, handler)
	p.mu.Unlock()
}

func (p *publisherImpl) Unsubscribe(handler interface{}) {
	target := reflect.ValueOf(handler).Pointer()
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, h := range p.handlers {
		if reflect.ValueOf(h).Pointer() == target {
			p.handlers = append(p.handlers[:i], p.handlers[i+1:]...)
			return
		}
	}
}

func (p *publisherImpl) Clear() {
	p.mu.Lock()
	p.handlers = nil
	p.mu.Unlock()
}

func (p *publisherImpl) SubscribersCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.handlers)
}
