package message

// Request body schemas. They check the fields the API requires and leave
// optional fields open.
const (
	textSchema = `{
	"type": "object",
	"properties": {
		"number": {"type": "string", "minLength": 1},
		"text": {"type": "string", "minLength": 1},
		"delay": {"type": "integer", "minimum": 0},
		"linkPreview": {"type": "boolean"},
		"mentionsEveryOne": {"type": "boolean"},
		"mentioned": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["number", "text"]
}`

	mediaSchema = `{
	"type": "object",
	"properties": {
		"number": {"type": "string", "minLength": 1},
		"mediatype": {"enum": ["image", "video", "document"]},
		"mimetype": {"type": "string"},
		"caption": {"type": "string"},
		"media": {"type": "string", "minLength": 1},
		"fileName": {"type": "string"},
		"delay": {"type": "integer", "minimum": 0}
	},
	"required": ["number", "mediatype", "media"]
}`

	audioSchema = `{
	"type": "object",
	"properties": {
		"number": {"type": "string", "minLength": 1},
		"audio": {"type": "string", "minLength": 1},
		"delay": {"type": "integer", "minimum": 0}
	},
	"required": ["number", "audio"]
}`

	stickerSchema = `{
	"type": "object",
	"properties": {
		"number": {"type": "string", "minLength": 1},
		"sticker": {"type": "string", "minLength": 1},
		"delay": {"type": "integer", "minimum": 0}
	},
	"required": ["number", "sticker"]
}`

	locationSchema = `{
	"type": "object",
	"properties": {
		"number": {"type": "string", "minLength": 1},
		"name": {"type": "string"},
		"address": {"type": "string"},
		"latitude": {"type": "number", "minimum": -90, "maximum": 90},
		"longitude": {"type": "number", "minimum": -180, "maximum": 180}
	},
	"required": ["number", "latitude", "longitude"]
}`

	contactSchema = `{
	"type": "object",
	"properties": {
		"number": {"type": "string", "minLength": 1},
		"contact": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"properties": {
					"fullName": {"type": "string", "minLength": 1},
					"wuid": {"type": "string"},
					"phoneNumber": {"type": "string", "minLength": 1},
					"organization": {"type": "string"},
					"email": {"type": "string"},
					"url": {"type": "string"}
				},
				"required": ["fullName", "phoneNumber"]
			}
		}
	},
	"required": ["number", "contact"]
}`

	reactionSchema = `{
	"type": "object",
	"properties": {
		"key": {
			"type": "object",
			"properties": {
				"remoteJid": {"type": "string", "minLength": 1},
				"fromMe": {"type": "boolean"},
				"id": {"type": "string", "minLength": 1}
			},
			"required": ["remoteJid", "fromMe", "id"]
		},
		"reaction": {"type": "string"}
	},
	"required": ["key", "reaction"]
}`

	pollSchema = `{
	"type": "object",
	"properties": {
		"number": {"type": "string", "minLength": 1},
		"name": {"type": "string", "minLength": 1},
		"selectableCount": {"type": "integer", "minimum": 0},
		"values": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}}
	},
	"required": ["number", "name", "values"]
}`

	listSchema = `{
	"type": "object",
	"properties": {
		"number": {"type": "string", "minLength": 1},
		"title": {"type": "string", "minLength": 1},
		"description": {"type": "string"},
		"buttonText": {"type": "string", "minLength": 1},
		"footerText": {"type": "string"},
		"sections": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"properties": {
					"title": {"type": "string"},
					"rows": {
						"type": "array",
						"minItems": 1,
						"items": {
							"type": "object",
							"properties": {
								"title": {"type": "string", "minLength": 1},
								"description": {"type": "string"},
								"rowId": {"type": "string", "minLength": 1}
							},
							"required": ["title", "rowId"]
						}
					}
				},
				"required": ["title", "rows"]
			}
		}
	},
	"required": ["number", "title", "buttonText", "sections"]
}`

	buttonsSchema = `{
	"type": "object",
	"properties": {
		"number": {"type": "string", "minLength": 1},
		"title": {"type": "string", "minLength": 1},
		"description": {"type": "string"},
		"footer": {"type": "string"},
		"buttons": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"properties": {
					"type": {"type": "string"},
					"displayText": {"type": "string", "minLength": 1},
					"id": {"type": "string"}
				},
				"required": ["displayText"]
			}
		}
	},
	"required": ["number", "title", "buttons"]
}`

	statusSchema = `{
	"type": "object",
	"properties": {
		"type": {"enum": ["text", "image", "video", "audio"]},
		"content": {"type": "string", "minLength": 1},
		"caption": {"type": "string"},
		"backgroundColor": {"type": "string"},
		"font": {"type": "integer"},
		"allContacts": {"type": "boolean"},
		"statusJidList": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["type", "content"]
}`
)
