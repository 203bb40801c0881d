package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Selectors are the XPath locators for the messages page. They track the
// site's markup, not any contract, so they can be overridden from a YAML file.
type Selectors struct {
	MessageListContainer string `yaml:"message_list_container"`
	ConversationItem     string `yaml:"conversation_item"`
	NicknameInsideItem   string `yaml:"nickname_inside_item"`
	ClickTarget          string `yaml:"click_target"`
	WriteTarget          string `yaml:"write_target"`
	Toast                string `yaml:"toast"`
	PasskeyPopupButton   string `yaml:"passkey_popup_button"`
}

func DefaultSelectors() Selectors {
	return Selectors{
		MessageListContainer: `//*[@id="app"]/div[2]/div[1]/div/div[4]/div/div/div[2]`,
		ConversationItem:     `//div[@data-e2e='chat-list-item']`,
		NicknameInsideItem:   `.//p[contains(@class, 'PInfoNickname')]`,
		ClickTarget:          `//*[@id="main-content-messages"]/div/div[3]/div[4]/div`,
		WriteTarget:          `//*[@id="main-content-messages"]/div/div[3]/div[4]/div/div[1]/div/div[2]/div[2]/div/div/div/div`,
		Toast:                `//li[@data-sonner-toast]`,
		PasskeyPopupButton:   `//div[@role='dialog']//button[contains(., 'Belki daha sonra')]`,
	}
}

// LoadSelectors returns the defaults overlaid with any keys set in path.
// An empty path means defaults only.
func LoadSelectors(path string) (Selectors, error) {
	selectors := DefaultSelectors()
	if path == "" {
		return selectors, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return selectors, fmt.Errorf("failed to read selectors file: %w", err)
	}

	var overlay Selectors
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return selectors, fmt.Errorf("failed to parse selectors file: %w", err)
	}

	override(&selectors.MessageListContainer, overlay.MessageListContainer)
	override(&selectors.ConversationItem, overlay.ConversationItem)
	override(&selectors.NicknameInsideItem, overlay.NicknameInsideItem)
	override(&selectors.ClickTarget, overlay.ClickTarget)
	override(&selectors.WriteTarget, overlay.WriteTarget)
	override(&selectors.Toast, overlay.Toast)
	override(&selectors.PasskeyPopupButton, overlay.PasskeyPopupButton)

	Logf("info", "Loaded selector overrides from %s", path)
	return selectors, nil
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
