package session

// Selectors locates the portal's controls. Values beginning with "/" are XPath.
type Selectors struct {
	EmailInput        string `yaml:"email_input" json:"email_input" validate:"required"`
	PINInput          string `yaml:"pin_input" json:"pin_input" validate:"required"`
	LoginButton       string `yaml:"login_button" json:"login_button" validate:"required"`
	InitialModalClose string `yaml:"initial_modal_close" json:"initial_modal_close" validate:"required"`
	NIKInput          string `yaml:"nik_input" json:"nik_input" validate:"required"`
	CheckNIKButton    string `yaml:"check_nik_button" json:"check_nik_button" validate:"required"`
	UserTypeModal     string `yaml:"user_type_modal" json:"user_type_modal" validate:"required"`
	ContinueButton    string `yaml:"continue_button" json:"continue_button" validate:"required"`
	UpdateDataTitle   string `yaml:"update_data_title" json:"update_data_title" validate:"required"`
	SkipUpdateButton  string `yaml:"skip_update_button" json:"skip_update_button" validate:"required"`
	AddItemButton     string `yaml:"add_item_button" json:"add_item_button" validate:"required"`
	QuantityInput     string `yaml:"quantity_input" json:"quantity_input" validate:"required"`
	CheckOrderButton  string `yaml:"check_order_button" json:"check_order_button" validate:"required"`
	PayButton         string `yaml:"pay_button" json:"pay_button" validate:"required"`
	BackButton        string `yaml:"back_button" json:"back_button" validate:"required"`
}

// DefaultSelectors returns the merchant portal's current markup.
func DefaultSelectors() Selectors {
	return Selectors{
		EmailInput:        "#mantine-r0",
		PINInput:          "#mantine-r1",
		LoginButton:       "//button[@type='submit'][contains(., 'Masuk')]",
		InitialModalClose: ".styles_iconClose__ZjGFM",
		NIKInput:          `input.mantine-Input-input[placeholder="Masukkan 16 digit NIK Pelanggan"]`,
		CheckNIKButton:    `[data-testid="btnCheckNik"]`,
		UserTypeModal:     ".mantine-Modal-body",
		ContinueButton:    `[data-testid="btnContinueTrx"]`,
		UpdateDataTitle:   "//div[contains(@class, 'mantine-Text-root') and text()='Perbarui Data Pelanggan']",
		SkipUpdateButton:  "//button[contains(., 'Lewati, Lanjut Transaksi')]",
		AddItemButton:     `[data-testid="actionIcon2"]`,
		QuantityInput:     `[data-testid="numberInput"].styles_input__DRhNi`,
		CheckOrderButton:  `[data-testid="btnCheckOrder"]`,
		PayButton:         `[data-testid="btnPay"]`,
		BackButton:        `[data-testid="btnBack"]`,
	}
}

// Texts are exact strings the workflow matches against rendered content.
type Texts struct {
	QuotaExceeded  string `yaml:"quota_exceeded" json:"quota_exceeded" validate:"required"`
	UserTypePrompt string `yaml:"user_type_prompt" json:"user_type_prompt" validate:"required"`
}

// DefaultTexts returns the portal's current wording.
func DefaultTexts() Texts {
	return Texts{
		QuotaExceeded:  "Tidak dapat transaksi karena telah melebihi batas kewajaran pembelian LPG 3 kg bulan ini untuk NIK yang terdaftar pada nomor KK yang sama.",
		UserTypePrompt: "Pilih salah satu jenis pengguna untuk melanjutkan transaksi",
	}
}
