package broker

import (
	"fmt"
	"sync"
)

type MockPublish struct {
	Topic   string
	Payload []byte
}

// MockOpener fails first FailFirst attempts, FailFirst<0 never connects.
type MockOpener struct {
	sync.Mutex
	FailFirst  int
	PublishErr error
	Opens      int
	Sessions   []*MockSession
	LastOpt    Options
}

func (o *MockOpener) Open(opt Options) (Session, error) {
	o.Lock()
	defer o.Unlock()
	o.Opens++
	o.LastOpt = opt
	if o.FailFirst < 0 || o.Opens <= o.FailFirst {
		return nil, fmt.Errorf("mock broker refused attempt=%d", o.Opens)
	}
	s := &MockSession{err: o.PublishErr}
	o.Sessions = append(o.Sessions, s)
	return s, nil
}

type MockSession struct {
	sync.Mutex
	Published []MockPublish
	Closed    int
	err       error
}

func (s *MockSession) Publish(topic string, payload []byte) error {
	s.Lock()
	defer s.Unlock()
	s.Published = append(s.Published, MockPublish{Topic: topic, Payload: payload})
	return s.err
}

func (s *MockSession) Close() error {
	s.Lock()
	s.Closed++
	s.Unlock()
	return nil
}
