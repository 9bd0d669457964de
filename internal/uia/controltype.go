package uia

import "fmt"

// ControlType is a UIA_*ControlTypeId value.
type ControlType int32

const (
	ControlButton      ControlType = 50000
	ControlCalendar    ControlType = 50001
	ControlCheckBox    ControlType = 50002
	ControlComboBox    ControlType = 50003
	ControlEdit        ControlType = 50004
	ControlHyperlink   ControlType = 50005
	ControlImage       ControlType = 50006
	ControlListItem    ControlType = 50007
	ControlList        ControlType = 50008
	ControlMenu        ControlType = 50009
	ControlMenuBar     ControlType = 50010
	ControlMenuItem    ControlType = 50011
	ControlProgressBar ControlType = 50012
	ControlRadioButton ControlType = 50013
	ControlScrollBar   ControlType = 50014
	ControlSlider      ControlType = 50015
	ControlSpinner     ControlType = 50016
	ControlStatusBar   ControlType = 50017
	ControlTab         ControlType = 50018
	ControlTabItem     ControlType = 50019
	ControlText        ControlType = 50020
	ControlToolBar     ControlType = 50021
	ControlToolTip     ControlType = 50022
	ControlTree        ControlType = 50023
	ControlTreeItem    ControlType = 50024
	ControlCustom      ControlType = 50025
	ControlGroup       ControlType = 50026
	ControlThumb       ControlType = 50027
	ControlDataGrid    ControlType = 50028
	ControlDataItem    ControlType = 50029
	ControlDocument    ControlType = 50030
	ControlSplitButton ControlType = 50031
	ControlWindow      ControlType = 50032
	ControlPane        ControlType = 50033
	ControlHeader      ControlType = 50034
	ControlHeaderItem  ControlType = 50035
	ControlTable       ControlType = 50036
	ControlTitleBar    ControlType = 50037
	ControlSeparator   ControlType = 50038
)

var controlTypeNames = map[ControlType]string{
	ControlButton:      "Button",
	ControlCalendar:    "Calendar",
	ControlCheckBox:    "CheckBox",
	ControlComboBox:    "ComboBox",
	ControlEdit:        "Edit",
	ControlHyperlink:   "Hyperlink",
	ControlImage:       "Image",
	ControlListItem:    "ListItem",
	ControlList:        "List",
	ControlMenu:        "Menu",
	ControlMenuBar:     "MenuBar",
	ControlMenuItem:    "MenuItem",
	ControlProgressBar: "ProgressBar",
	ControlRadioButton: "RadioButton",
	ControlScrollBar:   "ScrollBar",
	ControlSlider:      "Slider",
	ControlSpinner:     "Spinner",
	ControlStatusBar:   "StatusBar",
	ControlTab:         "Tab",
	ControlTabItem:     "TabItem",
	ControlText:        "Text",
	ControlToolBar:     "ToolBar",
	ControlToolTip:     "ToolTip",
	ControlTree:        "Tree",
	ControlTreeItem:    "TreeItem",
	ControlCustom:      "Custom",
	ControlGroup:       "Group",
	ControlThumb:       "Thumb",
	ControlDataGrid:    "DataGrid",
	ControlDataItem:    "DataItem",
	ControlDocument:    "Document",
	ControlSplitButton: "SplitButton",
	ControlWindow:      "Window",
	ControlPane:        "Pane",
	ControlHeader:      "Header",
	ControlHeaderItem:  "HeaderItem",
	ControlTable:       "Table",
	ControlTitleBar:    "TitleBar",
	ControlSeparator:   "Separator",
}

// String returns the control type label, or "Unknown (<id>)".
func (c ControlType) String() string {
	if name, ok := controlTypeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Unknown (%d)", int32(c))
}

// Interactive reports whether elements of this type are reported as the
// subject of an interaction in preference to their container.
func (c ControlType) Interactive() bool {
	switch c {
	case ControlButton, ControlComboBox, ControlMenuItem, ControlTabItem,
		ControlListItem, ControlTreeItem, ControlSpinner, ControlHyperlink:
		return true
	}
	return false
}
