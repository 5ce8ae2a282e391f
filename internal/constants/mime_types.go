package constants

// MimeTypes maps file extensions to MIME types for bridge media whose
// session did not report one. The set covers what WhatsApp accepts per
// media kind: stickers arrive as webp, voice notes as ogg opus, and
// video notes as mp4 or 3gpp.
var MimeTypes = map[string]string{
	// image
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",

	// video
	".mp4": "video/mp4",
	".3gp": "video/3gpp",
	".mov": "video/quicktime",

	// audio
	".aac": "audio/aac",
	".m4a": "audio/mp4",
	".mp3": "audio/mpeg",
	".amr": "audio/amr",
	".ogg": "audio/ogg",
	".wav": "audio/wav",

	// document
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":  "application/vnd.ms-powerpoint",
	".pptx": "application/vnd.openxmlformats-officedocument.presentationml.presentation",
}

// DefaultMimeType is the fallback for unknown file extensions.
const DefaultMimeType = "application/octet-stream"
