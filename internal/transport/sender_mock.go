package transport

// SenderMock imitates sending requests and receiving responses
type SenderMock struct {
	Requests []Request
	Response Response
	Err      error
}

// Send ...
func (s *SenderMock) Send(req Request) (*Response, error) {
	s.Requests = append(s.Requests, req)
	if s.Err != nil {
		return nil, s.Err
	}
	resp := s.Response
	return &resp, nil
}
