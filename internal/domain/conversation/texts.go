package conversation

// Patient-facing texts. Formatting uses the channel's *bold* and _italic_
// markers.
const (
	welcomeText = `*TRIAGE LINE*
_Telemedicine Service_

Welcome!

*IMPORTANT - READ FIRST*

This service is NOT for emergencies. If you're experiencing a life-threatening emergency or severe symptoms, please call emergency services immediately.

*USER AGREEMENT*

By replying "GET STARTED", you agree that:

- Information provided is for health guidance only
- Your information is encrypted and confidential
- You understand the limitations of this service
- You will seek emergency care if needed

*Response Time:*
- Usually within 10-60 minutes
- All conversations are private and secure

To continue, reply:
*GET STARTED* - I agree and want to proceed
*DECLINE* - I don't want to continue`

	acceptancePromptText = "Please reply *GET STARTED* to continue or *DECLINE* to leave."

	declinedText = "Thank you for your interest. If you change your mind, feel free to reach out anytime."

	modeSelectionText = `Great! Now, how would you like to proceed?

*1. TALK TO AI (FREE)*
Get general health information and guidance from our AI assistant. Good for:
- Understanding symptoms
- General health questions
- Wellness advice

*Note:* AI cannot diagnose or prescribe

*2. SEE A CLINICIAN (PAID)*
Connect with a licensed medical professional who can:
- Assess your symptoms
- Provide diagnosis
- Issue prescriptions

*Cost:* Uses 1 consultation credit

Reply with:
*1* for AI Chat (Free)
*2* for Clinician (Paid)`

	modePromptText = "Please reply with *1* for AI Chat or *2* for Clinician."

	aiOnlyDisclaimerText = `Perfect! You're now chatting with our AI assistant.

*What I CAN do:*
- Answer general health questions
- Explain medical terms
- Provide wellness information

*What I CANNOT do:*
- Diagnose medical conditions
- Prescribe medications
- Replace a doctor's visit
- Handle emergencies

If at any point you need a licensed clinician, just reply DOCTOR.

Now, what would you like to know?`

	aiOnlyFallbackText = "I'm having trouble processing that. Could you rephrase your question?"

	clinicianModeText = `Excellent! You'll be connected with a licensed clinician.

Let me collect some information first so the doctor has context when they review your case.`

	escalationConsentText = `*CLINICIAN CONSULTATION NEEDED*

Based on what you've shared, you need a licensed clinician to properly help you.

A doctor can:
- Assess your condition
- Provide diagnosis
- Prescribe treatment if needed

*Cost:* 1 consultation credit

*Would you like to connect with a clinician?*

Reply:
*YES* - Connect me with a doctor
*NO* - Continue chatting with AI`

	consentYesText      = "Perfect! Connecting you with a clinician. Let me collect some information first."
	consentYesReadyText = "Perfect! Connecting you with a clinician. A few quick questions first so the doctor has context."
	consentNoText       = "No problem! I'll continue helping with general information. What else would you like to know?"
	consentPromptText   = "Please reply *YES* to see a clinician or *NO* to continue with AI."

	agePromptText       = "What's your age?"
	ageInvalidText      = "Please enter a valid age (number)."
	genderPromptText    = "Thanks! What's your gender? Reply: Male, Female, or Other"
	welcomeBackText     = "Welcome back!"
	genderInvalidText   = "Please reply: Male, Female, or Other"
	complaintPromptText = "Perfect! Now, what brings you here today? Please describe what's bothering you."
	complaintShortText  = "Please describe your symptoms in a bit more detail."

	emptyAnswerText = "I didn't catch that. Could you please repeat your answer?"

	assessmentFailedText = "We couldn't prepare your assessment right now. Reply RETRY to try again."
	retryPromptText      = "Your answers are saved. Reply RETRY to prepare your assessment."

	assessmentLockedText = `*ASSESSMENT COMPLETE*

We have analyzed your symptoms.
To unlock your full results and have a doctor review your case, please use a credit.

*Balance: 0 Credits*
*Select a package to unlock:*`

	urgentNoticeText = "Your message mentions symptoms that may need urgent attention. If this is a life-threatening emergency, call your local emergency number now."

	emergencyText = `Your message mentions symptoms that may need urgent attention. A clinician has been alerted and will contact you shortly.

If this is a life-threatening emergency, call your local emergency number now.`

	humanRequestedText = "A clinician has been alerted and will message you here shortly."

	waitingForClinicianText = "Thanks, we've noted that. A clinician will pick up your case shortly."

	closedText = "Your consultation has been closed. Thank you for using our service. Message us anytime to start a new one."

	fallbackText = "Sorry, something went wrong on our side. Please try again in a moment."
)
