package model

// SettingsID is the fixed primary key of the singleton settings row.
const SettingsID = 1

// Settings holds storefront wide values shown next to the product list.
type Settings struct {
    Currency      string `json:"currency"`
    WhatsAppPhone string `json:"whatsapp_phone"`
}

// DefaultSettings is what readers see when no settings row exists.
func DefaultSettings() Settings {
    return Settings{Currency: "USD", WhatsAppPhone: ""}
}
