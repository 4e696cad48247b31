package tsurugipb

import "google.golang.org/protobuf/encoding/protowire"

// The core/endpoint service carries handshake, shutdown, update-expiration-
// time, and session-bye — the connection lifecycle messages that predate a
// session id being assigned (spec §4.7). These travel over the same
// framework request/response envelope as SQL service messages, with
// CoreServiceID in place of SQLServiceID.
const (
	CoreServiceID     = 1
	EndpointServiceID = 2
)

// CredentialKind is the credential kind carried in the handshake. Its values
// differ from config.CredentialKind; the session's handshake maps one onto
// the other.
type CredentialKind int32

const (
	CredentialNone CredentialKind = iota
	CredentialUserPassword
	CredentialAuthToken
	CredentialEncryptedUserPassword
)

// ClientInformation is the connection-information block sent with a
// handshake request (spec §4.7, §6.3 application_name/session_label).
type ClientInformation struct {
	ApplicationName string
	SessionLabel    string
}

// HandshakeRequest is the first message sent on a freshly dialed
// transport, before any session id exists (so its framework-request-header
// carries session id 0).
type HandshakeRequest struct {
	ClientInfo ClientInformation
	Credential CredentialKind
	User       string
	Password   string // plaintext, or RSA-encrypted+base64 when Credential==CredentialEncryptedUserPassword
	Token      string
}

func (r *HandshakeRequest) Marshal() []byte {
	w := &msgWriter{}
	w.stringField(1, r.ClientInfo.ApplicationName)
	w.stringField(2, r.ClientInfo.SessionLabel)
	w.int64Field(3, int64(r.Credential))
	w.stringField(4, r.User)
	w.stringField(5, r.Password)
	w.stringField(6, r.Token)
	return w.bytes()
}

// HandshakeResponse carries the server-assigned session id and the
// authenticated user name, if any (spec §3 Session identity).
type HandshakeResponse struct {
	SessionID       int64
	AuthenticatedAs string
	Err             *ServiceError
}

func UnmarshalHandshakeResponse(data []byte) (*HandshakeResponse, error) {
	resp := &HandshakeResponse{}
	r := msgReader{data: data}
	err := r.each(func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(data)
			resp.SessionID = int64(v)
			return n, nil
		case 2:
			s, n := protowire.ConsumeString(data)
			resp.AuthenticatedAs = s
			return n, nil
		case fieldError:
			b, n := protowire.ConsumeBytes(data)
			e, uerr := unmarshalServiceError(b)
			if uerr != nil {
				return n, uerr
			}
			resp.Err = e
			return n, nil
		}
		return -1, nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ShutdownRequest requests graceful or forceful connection teardown (spec
// §4.7 "shutdown(type)").
type ShutdownRequest struct {
	Graceful bool
}

func (r *ShutdownRequest) Marshal() []byte {
	w := &msgWriter{}
	w.boolField(1, r.Graceful)
	return w.bytes()
}

// UpdateExpirationTimeRequest extends (or, absent a duration, lets the
// server apply its own policy for) session expiration (spec §4.7).
type UpdateExpirationTimeRequest struct {
	HasDuration   bool
	DurationNanos int64
}

func (r *UpdateExpirationTimeRequest) Marshal() []byte {
	w := &msgWriter{}
	w.boolField(1, r.HasDuration)
	if r.HasDuration {
		w.int64Field(2, r.DurationNanos)
	}
	return w.bytes()
}

// SessionByeRequest is the best-effort farewell sent by Session.Close
// (spec §4.7 "close — sends a session-bye best effort").
type SessionByeRequest struct{}

func (r *SessionByeRequest) Marshal() []byte { return nil }

// EncryptionKeyRequest asks the endpoint service for the RSA public key used
// to encrypt credentials before a handshake that selects
// CredentialEncryptedUserPassword (spec §4.7 encrypted-credential variant).
// It travels over EndpointServiceID with session id 0, same as a handshake.
type EncryptionKeyRequest struct{}

func (r *EncryptionKeyRequest) Marshal() []byte { return nil }

// EncryptionKeyResponse carries the PEM-encoded RSA public key.
type EncryptionKeyResponse struct {
	EncryptionKey string
	Err           *ServiceError
}

func UnmarshalEncryptionKeyResponse(data []byte) (*EncryptionKeyResponse, error) {
	resp := &EncryptionKeyResponse{}
	r := msgReader{data: data}
	err := r.each(func(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
		switch num {
		case 1:
			s, n := protowire.ConsumeString(data)
			resp.EncryptionKey = s
			return n, nil
		case fieldError:
			b, n := protowire.ConsumeBytes(data)
			e, uerr := unmarshalServiceError(b)
			if uerr != nil {
				return n, uerr
			}
			resp.Err = e
			return n, nil
		}
		return -1, nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
