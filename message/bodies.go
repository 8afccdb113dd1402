package message

// Message is a typed request body.
type Message interface {
	MessageType() Type
}

// TextMessage is the body of a text message.
type TextMessage struct {
	Number      string   `json:"number"`
	Text        string   `json:"text"`
	Delay       int      `json:"delay,omitempty"`
	LinkPreview *bool    `json:"linkPreview,omitempty"`
	Mentioned   []string `json:"mentioned,omitempty"`
}

// MediaMessage sends an image, video or document by URL or base64.
type MediaMessage struct {
	Number    string `json:"number"`
	MediaType string `json:"mediatype"`
	MimeType  string `json:"mimetype,omitempty"`
	Caption   string `json:"caption,omitempty"`
	Media     string `json:"media"`
	FileName  string `json:"fileName,omitempty"`
	Delay     int    `json:"delay,omitempty"`
}

// AudioMessage sends a voice note.
type AudioMessage struct {
	Number string `json:"number"`
	Audio  string `json:"audio"`
	Delay  int    `json:"delay,omitempty"`
}

// StickerMessage sends a sticker.
type StickerMessage struct {
	Number  string `json:"number"`
	Sticker string `json:"sticker"`
	Delay   int    `json:"delay,omitempty"`
}

// LocationMessage sends a pin.
type LocationMessage struct {
	Number    string  `json:"number"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ContactCard is one shared contact.
type ContactCard struct {
	FullName     string `json:"fullName"`
	WUID         string `json:"wuid,omitempty"`
	PhoneNumber  string `json:"phoneNumber"`
	Organization string `json:"organization,omitempty"`
	Email        string `json:"email,omitempty"`
	URL          string `json:"url,omitempty"`
}

// ContactMessage shares one or more contacts.
type ContactMessage struct {
	Number  string        `json:"number"`
	Contact []ContactCard `json:"contact"`
}

// MessageKey identifies an existing message.
type MessageKey struct {
	RemoteJID string `json:"remoteJid"`
	FromMe    bool   `json:"fromMe"`
	ID        string `json:"id"`
}

// ReactionMessage reacts to an existing message. An empty Reaction removes it.
type ReactionMessage struct {
	Key      MessageKey `json:"key"`
	Reaction string     `json:"reaction"`
}

// PollMessage creates a poll.
type PollMessage struct {
	Number          string   `json:"number"`
	Name            string   `json:"name"`
	SelectableCount int      `json:"selectableCount"`
	Values          []string `json:"values"`
}

// ListRow is one selectable row of a list section.
type ListRow struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	RowID       string `json:"rowId"`
}

// ListSection groups rows under a title.
type ListSection struct {
	Title string    `json:"title"`
	Rows  []ListRow `json:"rows"`
}

// ListMessage sends an interactive list.
type ListMessage struct {
	Number      string        `json:"number"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	ButtonText  string        `json:"buttonText"`
	FooterText  string        `json:"footerText,omitempty"`
	Sections    []ListSection `json:"sections"`
}

// Button is one reply button.
type Button struct {
	Type        string `json:"type,omitempty"`
	DisplayText string `json:"displayText"`
	ID          string `json:"id,omitempty"`
}

// ButtonsMessage sends reply buttons.
type ButtonsMessage struct {
	Number      string   `json:"number"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Footer      string   `json:"footer,omitempty"`
	Buttons     []Button `json:"buttons"`
}

// StatusMessage posts a status update.
type StatusMessage struct {
	Type            string   `json:"type"`
	Content         string   `json:"content"`
	Caption         string   `json:"caption,omitempty"`
	BackgroundColor string   `json:"backgroundColor,omitempty"`
	Font            int      `json:"font,omitempty"`
	AllContacts     bool     `json:"allContacts,omitempty"`
	StatusJIDList   []string `json:"statusJidList,omitempty"`
}

func (TextMessage) MessageType() Type { return Text }
func (MediaMessage) MessageType() Type { return Media }
func (AudioMessage) MessageType() Type { return Audio }
func (StickerMessage) MessageType() Type { return Sticker }
func (LocationMessage) MessageType() Type { return Location }
func (ContactMessage) MessageType() Type { return Contact }
func (ReactionMessage) MessageType() Type { return Reaction }
func (PollMessage) MessageType() Type { return Poll }
func (ListMessage) MessageType() Type { return List }
func (ButtonsMessage) MessageType() Type { return Buttons }
func (StatusMessage) MessageType() Type { return Status }
