package domain

// Command kinds understood by the domain dispatchers. Kinds are namespaced
// by the owning domain; the matching response kind is the command kind with
// a ".response" suffix.
const (
	KindHealthCheck = "health.check"

	KindAuthValidateToken = "auth.validate_token"
	KindAuthExtractUID    = "auth.extract_uid"

	KindDeviceAuthValidateToken = "device-auth.validate_token"
	KindDeviceAuthExtractUID    = "device-auth.extract_uid"

	KindDeviceGetByUID    = "device.get_by_uid"
	KindDeviceGetByClient = "device.get_by_client"

	KindBufferGetByUID    = "buffer.get_by_uid"
	KindBufferGetByDevice = "buffer.get_by_device"
	KindBufferGetByScheme = "buffer.get_by_scheme"

	KindSchemeGetByUID    = "scheme.get_by_uid"
	KindSchemeGetByBuffer = "scheme.get_by_buffer"

	KindMessageAdd         = "message.add"
	KindMessageGetByBuffer = "message.get_by_buffer"
	KindMessageGetByDevice = "message.get_by_device"
	KindMessageGetByScheme = "message.get_by_scheme"
)

// Payload carried by auth.validate_token and device-auth.validate_token.
type ValidateTokenRequest struct {
	Token string `json:"token"`
}

// Payload answered by the token validation commands.
type ValidateTokenResponse struct {
	UID string `json:"uid"`
}

// Payload carried by the extract_uid commands. Extraction does not verify
// the token; callers that need verification use validate_token.
type ExtractUIDRequest struct {
	Token string `json:"token"`
}

type ExtractUIDResponse struct {
	UID string `json:"uid"`
}

type GetDeviceByUIDRequest struct {
	DeviceUID string `json:"device_uid"`
}

type GetDeviceByUIDResponse struct {
	Device Device `json:"device"`
}

type GetDevicesByClientRequest struct {
	ClientUID string `json:"client_uid"`
}

type GetDevicesByClientResponse struct {
	Devices []Device `json:"devices"`
}

type GetBufferByUIDRequest struct {
	BufferUID string `json:"buffer_uid"`
}

type GetBufferByUIDResponse struct {
	Buffer Buffer `json:"buffer"`
}

type GetBuffersByDeviceRequest struct {
	DeviceUID string `json:"device_uid"`
}

type GetBuffersByDeviceResponse struct {
	Buffers []Buffer `json:"buffers"`
}

type GetBuffersBySchemeRequest struct {
	SchemeUID string `json:"scheme_uid"`
}

type GetBuffersBySchemeResponse struct {
	Buffers []Buffer `json:"buffers"`
}

type GetSchemeByUIDRequest struct {
	SchemeUID string `json:"scheme_uid"`
}

type GetSchemeByUIDResponse struct {
	Scheme ConnectionScheme `json:"scheme"`
}

type GetSchemesByBufferRequest struct {
	BufferUID string `json:"buffer_uid"`
}

type GetSchemesByBufferResponse struct {
	Schemes []ConnectionScheme `json:"schemes"`
}

// Credentials identify the caller of a message command. The message router
// resolves them into a principal over the bus; a client token wins when both
// are present.
type Credentials struct {
	ClientToken string `json:"client_token,omitempty"`
	DeviceToken string `json:"device_token,omitempty"`
}

type AddMessageRequest struct {
	Credentials
	Message Message `json:"message"`
}

type AddMessageResponse struct {
	Message Message `json:"message"`
}

// MessageQuery pages stored messages ordered by creation time. Exactly one
// of the uid fields is set, matching the command kind it rides on.
type MessageQuery struct {
	Credentials
	BufferUID   string `json:"buffer_uid,omitempty"`
	DeviceUID   string `json:"device_uid,omitempty"`
	SchemeUID   string `json:"scheme_uid,omitempty"`
	DeleteOnGet bool   `json:"delete_on_get,omitempty"`
	Offset      int    `json:"offset,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

type GetMessagesResponse struct {
	Messages []Message `json:"messages"`
}
