package cnst

const (
	// ContentTypeJPEG is the content type of every frame
	ContentTypeJPEG = "image/jpeg"
	// MultipartBoundary separates frames of a continuous feed
	MultipartBoundary = "frame"
	// ContentTypeMultipart is the content type of continuous feeds
	ContentTypeMultipart = "multipart/x-mixed-replace; boundary=" + MultipartBoundary

	// ContextKeyIdentity stores the resolved client identity on a gin context
	ContextKeyIdentity = "castwall.identity"
)
